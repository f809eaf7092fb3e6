// Command lvm-scan is a diagnostic tool: it runs a scan and prints
// every discovered VG, PV and LV, for use while debugging an
// initramfs image interactively.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/s0up4200/lvm-activate/internal/engineconfig"
	"github.com/s0up4200/lvm-activate/pkg/lvm"
)

func main() {
	configPath := flag.String("config", "", "path to an optional engine config file")
	flag.Parse()

	cfg, err := engineconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("lvm-scan: %v", err)
	}

	ctx := lvm.Init(cfg)
	defer ctx.Quit()

	if ctx.Scan() != 0 {
		log.Fatalf("lvm-scan: scan failed: %s", ctx.Errmsg())
	}

	for _, name := range ctx.VGNames() {
		vg := ctx.OpenVG(name)
		if vg == nil {
			continue
		}
		fmt.Printf("VG %s\n", vg.Name())
		fmt.Printf("  PVs: %v\n", vg.PVNames())
		for _, lvName := range vg.LVNames() {
			lv := vg.LookupLV(lvName)
			if lv == nil {
				continue
			}
			fmt.Printf("  LV %s  size=%d bytes\n", lv.Name(), lv.Size())
		}
		vg.Close()
	}
}
