// Package tagresolve implements the tag-to-device-node primitive that
// external collaborators (mount helpers, the init interpreter) use:
// given a LABEL=/UUID=/UUID_SUB=/PARTUUID= tag, return the matching
// /dev node.
package tagresolve

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/s0up4200/lvm-activate/internal/errs"
)

// Kind is one of the four tag flavors the init interpreter passes
// around.
type Kind string

const (
	KindLabel    Kind = "LABEL"
	KindUUID     Kind = "UUID"
	KindUUIDSub  Kind = "UUID_SUB"
	KindPartUUID Kind = "PARTUUID"
)

// Tag is a parsed "KIND=value" identifier.
type Tag struct {
	Kind  Kind
	Value string
}

func (t Tag) String() string { return string(t.Kind) + "=" + t.Value }

// ParseTag splits "LABEL=root" into its Kind and Value.
func ParseTag(s string) (Tag, error) {
	kind, value, ok := strings.Cut(s, "=")
	if !ok {
		return Tag{}, errs.New(errs.KindSystem, "malformed tag "+s)
	}
	switch Kind(kind) {
	case KindLabel, KindUUID, KindUUIDSub, KindPartUUID:
		return Tag{Kind: Kind(kind), Value: value}, nil
	default:
		return Tag{}, errs.New(errs.KindSystem, "unknown tag kind "+kind)
	}
}

// Cache resolves a tag to an absolute device-node path, conceptually
// an OS-provided block-device identification cache.
type Cache interface {
	Resolve(tag Tag) (string, bool)
}

// DiskByCache resolves LABEL/UUID/PARTUUID through the udev-maintained
// /dev/disk/by-* symlink farms. UUID_SUB has no generic udev
// equivalent (it identifies a member of a multi-device filesystem,
// e.g. one btrfs device among several sharing a top-level UUID) and is
// served from a caller-supplied map instead.
type DiskByCache struct {
	Root     string // defaults to "/dev/disk"
	SubUUIDs map[string]string
}

func (c *DiskByCache) root() string {
	if c.Root == "" {
		return "/dev/disk"
	}
	return c.Root
}

func (c *DiskByCache) Resolve(tag Tag) (string, bool) {
	if tag.Kind == KindUUIDSub {
		path, ok := c.SubUUIDs[tag.Value]
		return path, ok
	}

	var dir string
	switch tag.Kind {
	case KindLabel:
		dir = "by-label"
	case KindUUID:
		dir = "by-uuid"
	case KindPartUUID:
		dir = "by-partuuid"
	default:
		return "", false
	}

	link := filepath.Join(c.root(), dir, tag.Value)
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		return "", false
	}
	return resolved, true
}

// Resolver is the public entry point used by external collaborators.
type Resolver struct {
	Cache Cache
}

func NewResolver(cache Cache) *Resolver {
	return &Resolver{Cache: cache}
}

// Resolve returns the device path for tag, or false if it is not
// currently present.
func (r *Resolver) Resolve(tag Tag) (string, bool) {
	return r.Cache.Resolve(tag)
}

// WaitForTag polls Resolve at one-second intervals until it succeeds.
// There is no timeout: per the engine's concurrency model this call is
// intentionally unbounded, expected to be interrupted by the outer
// init program via signal/ctx cancellation if hardware never appears.
func (r *Resolver) WaitForTag(ctx context.Context, tag Tag) (string, error) {
	if path, ok := r.Resolve(tag); ok {
		return path, nil
	}
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	limiter.Allow() // consume the initial burst token so the first Wait below actually blocks one interval
	for {
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}
		if path, ok := r.Resolve(tag); ok {
			return path, nil
		}
	}
}
