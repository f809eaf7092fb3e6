// Command lvmctl is an operator-facing wrapper around the engine: a
// scan/activate command group for use from an interactive
// emergency shell dropped into the initramfs, as opposed to the
// single-purpose binaries the init-script interpreter scripts
// directly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/s0up4200/lvm-activate/internal/engineconfig"
	"github.com/s0up4200/lvm-activate/pkg/lvm"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lvmctl",
		Short: "Inspect and activate LVM2 volumes from the initramfs shell",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional engine config file")

	root.AddCommand(newScanCmd())
	root.AddCommand(newActivateCmd())
	return root
}

func openContext() (*lvm.Context, error) {
	cfg, err := engineconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	ctx := lvm.Init(cfg)
	if ctx.Scan() != 0 {
		ctx.Quit()
		return nil, fmt.Errorf("scan: %s", ctx.Errmsg())
	}
	return ctx, nil
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan for PVs and print every discovered VG/LV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := openContext()
			if err != nil {
				return err
			}
			defer ctx.Quit()

			for _, name := range ctx.VGNames() {
				vg := ctx.OpenVG(name)
				if vg == nil {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", vg.Name())
				for _, lvName := range vg.LVNames() {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", lvName)
				}
				vg.Close()
			}
			return nil
		},
	}
}

func newActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <vgname> <lvname>",
		Short: "Scan, then activate one logical volume",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := openContext()
			if err != nil {
				return err
			}
			defer ctx.Quit()

			vg := ctx.OpenVG(args[0])
			if vg == nil {
				return fmt.Errorf("open_vg: %s", ctx.Errmsg())
			}
			defer vg.Close()

			lv := vg.LookupLV(args[1])
			if lv == nil {
				return fmt.Errorf("lookup_lv: %s", ctx.Errmsg())
			}

			if lv.Activate() != 0 {
				return fmt.Errorf("activate_lv: %s", ctx.Errmsg())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activated %s.%s\n", args[0], args[1])
			return nil
		},
	}
}
