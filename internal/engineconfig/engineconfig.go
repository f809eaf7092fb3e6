// Package engineconfig holds the engine's tunable filesystem roots and
// logging verbosity, loadable from an optional YAML file shipped
// inside the initramfs image.
package engineconfig

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/s0up4200/lvm-activate/internal/errs"
)

// Config collects the filesystem paths the engine otherwise hardcodes,
// so a non-standard initramfs layout can override them without a
// rebuild. DiskByPathRoot is loaded but not read by any component;
// tag resolution uses tagresolve.DiskByCache.Root instead.
type Config struct {
	SysBlockDir    string `yaml:"sys_block_dir"`
	DevDir         string `yaml:"dev_dir"`
	DMControlPath  string `yaml:"dm_control_path"`
	DiskByPathRoot string `yaml:"disk_by_path_root"`
	LogLevel       string `yaml:"log_level"`
}

// Default returns the engine's built-in assumptions about a standard
// initramfs layout.
func Default() Config {
	return Config{
		SysBlockDir:    "/sys/dev/block",
		DevDir:         "/dev",
		DMControlPath:  "/dev/mapper/control",
		DiskByPathRoot: "/dev/disk",
		LogLevel:       "info",
	}
}

// Load reads and merges a YAML config file over Default(). A missing
// file is not an error — the caller gets Default() back untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errs.Wrap(errs.KindSystem, err, "read config "+path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errs.Wrap(errs.KindSystem, err, "parse config "+path)
	}
	return cfg, nil
}
