// Command bcache-cache-device-activate resolves a device-or-tag
// argument to a device node and registers it as a bcache cache device.
// External collaborator shape from spec §6; out of scope for the core
// engine beyond the tag-resolution primitive it consumes.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/s0up4200/lvm-activate/internal/tagresolve"
)

const bcacheRegisterPath = "/sys/fs/bcache/register"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bcache-cache-device-activate: %s\n", err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: bcache-cache-device-activate <device-or-tag>")
	}

	path, err := resolveDeviceOrTag(args[0])
	if err != nil {
		return err
	}

	return os.WriteFile(bcacheRegisterPath, []byte(path+"\n"), 0)
}

func resolveDeviceOrTag(arg string) (string, error) {
	if !strings.Contains(arg, "=") {
		return arg, nil
	}
	tag, err := tagresolve.ParseTag(arg)
	if err != nil {
		return "", err
	}
	resolver := tagresolve.NewResolver(&tagresolve.DiskByCache{})
	path, ok := resolver.Resolve(tag)
	if !ok {
		return "", fmt.Errorf("tag %s not found", tag)
	}
	return path, nil
}
