// Command lvm-lv-activate scans for LVM2 physical volumes and
// activates a single logical volume as a device-mapper device. It is
// the external collaborator the init-script interpreter invokes after
// bringing up /sys and /dev.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/s0up4200/lvm-activate/internal/engineconfig"
	"github.com/s0up4200/lvm-activate/pkg/lvm"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "lvm-lv-activate: %s\n", err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("lvm-lv-activate", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to an optional engine config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("usage: lvm-lv-activate <vgname> <lvname>")
	}
	vgName, lvName := rest[0], rest[1]

	cfg, err := engineconfig.Load(*configPath)
	if err != nil {
		return err
	}

	ctx := lvm.Init(cfg)
	defer ctx.Quit()

	if ctx.Scan() != 0 {
		return fmt.Errorf("scan: %s", ctx.Errmsg())
	}

	vg := ctx.OpenVG(vgName)
	if vg == nil {
		return fmt.Errorf("open_vg: %s", ctx.Errmsg())
	}
	defer vg.Close()

	lv := vg.LookupLV(lvName)
	if lv == nil {
		return fmt.Errorf("lookup_lv: %s", ctx.Errmsg())
	}

	if lv.Activate() != 0 {
		return fmt.Errorf("activate_lv: %s", ctx.Errmsg())
	}
	return nil
}
