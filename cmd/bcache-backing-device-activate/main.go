// Command bcache-backing-device-activate writes the device named by
// its <cache-device-or-tag> argument to /sys/fs/bcache/register, then
// blocks until the <lv-tag> argument resolves to a device node (the
// kernel attaches asynchronously). External collaborator shape from
// spec §6.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/s0up4200/lvm-activate/internal/tagresolve"
)

const bcacheRegisterPath = "/sys/fs/bcache/register"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bcache-backing-device-activate: %s\n", err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: bcache-backing-device-activate <lv-tag> <cache-device-or-tag>")
	}
	lvTagArg, cacheArg := args[0], args[1]

	resolver := tagresolve.NewResolver(&tagresolve.DiskByCache{})

	cachePath, err := resolveDeviceOrTag(resolver, cacheArg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(bcacheRegisterPath, []byte(cachePath+"\n"), 0); err != nil {
		return err
	}

	lvTag, err := tagresolve.ParseTag(lvTagArg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	path, err := resolver.WaitForTag(ctx, lvTag)
	if err != nil {
		return fmt.Errorf("wait_for_tag %s: %w", lvTag, err)
	}
	fmt.Println(path)
	return nil
}

func resolveDeviceOrTag(resolver *tagresolve.Resolver, arg string) (string, error) {
	if !strings.Contains(arg, "=") {
		return arg, nil
	}
	tag, err := tagresolve.ParseTag(arg)
	if err != nil {
		return "", err
	}
	path, ok := resolver.Resolve(tag)
	if !ok {
		return "", fmt.Errorf("tag %s not found", tag)
	}
	return path, nil
}
