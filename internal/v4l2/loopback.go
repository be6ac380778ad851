// Package v4l2 manages the v4l2loopback kernel module that backs the
// virtual camera device.
package v4l2

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"adbcam/internal/config"
)

// ModuleName is the kernel module providing virtual video devices.
const ModuleName = "v4l2loopback"

// sysVideoDir is where the kernel exposes virtual video4linux devices.
const sysVideoDir = "/sys/devices/virtual/video4linux"

// Loopback loads, locates, and unloads the v4l2loopback module.
type Loopback struct {
	cfg config.VideoConfig
	log *slog.Logger

	// procModules, sysDir, and devDir are overridable for tests.
	procModules string
	sysDir      string
	devDir      string
	runner      func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewLoopback returns a Loopback for the given video configuration.
func NewLoopback(cfg config.VideoConfig, log *slog.Logger) *Loopback {
	if log == nil {
		log = slog.Default()
	}
	return &Loopback{
		cfg:         cfg,
		log:         log,
		procModules: "/proc/modules",
		sysDir:      sysVideoDir,
		devDir:      "/dev",
		runner:      runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Loaded reports whether the module is currently loaded.
func (l *Loopback) Loaded() (bool, error) {
	data, err := os.ReadFile(l.procModules)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", l.procModules, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if name, _, ok := strings.Cut(line, " "); ok && name == ModuleName {
			return true, nil
		}
	}
	return false, nil
}

// Available reports whether the module exists on the system at all.
func (l *Loopback) Available(ctx context.Context) bool {
	_, err := l.runner(ctx, "modinfo", "--field", "name", ModuleName)
	return err == nil
}

// Ensure makes sure the module is loaded with this run's parameters and
// returns the device path plus whether this call loaded the module. A module
// that was already loaded is reused as-is; its parameters belong to whoever
// loaded it, and unloading it on exit would yank a device other software may
// be using.
func (l *Loopback) Ensure(ctx context.Context) (devicePath string, owned bool, err error) {
	loaded, err := l.Loaded()
	if err != nil {
		return "", false, err
	}

	if !loaded {
		args := []string{
			"modprobe", ModuleName,
			"devices=1",
			fmt.Sprintf("video_nr=%d", l.cfg.DeviceNr),
			fmt.Sprintf("card_label=%s", l.cfg.CardLabel),
		}
		if l.cfg.ExclusiveCaps {
			args = append(args, "exclusive_caps=1")
		}
		l.log.Info("loading kernel module", slog.String("module", ModuleName))
		out, err := l.runner(ctx, "sudo", args...)
		if err != nil {
			return "", false, fmt.Errorf("modprobe %s: %w: %s", ModuleName, err, strings.TrimSpace(string(out)))
		}
		owned = true
	} else {
		l.log.Info("kernel module already loaded, reusing", slog.String("module", ModuleName))
	}

	path, err := l.devicePath()
	if err != nil {
		if owned {
			// Don't keep a module we loaded but cannot use.
			if uerr := l.Unload(ctx); uerr != nil {
				l.log.Error("unloading after failed device lookup", slog.String("error", uerr.Error()))
			}
		}
		return "", false, err
	}
	return path, owned, nil
}

// Unload removes the module.
func (l *Loopback) Unload(ctx context.Context) error {
	out, err := l.runner(ctx, "sudo", "modprobe", "-r", ModuleName)
	if err != nil {
		return fmt.Errorf("modprobe -r %s: %w: %s", ModuleName, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// devicePath locates the device node. The card label is matched against
// /sys/devices/virtual/video4linux/*/name first; when the module was loaded
// by someone else with a different label, the configured video_nr node is
// used as a fallback.
func (l *Loopback) devicePath() (string, error) {
	entries, err := os.ReadDir(l.sysDir)
	if err == nil {
		for _, entry := range entries {
			nameFile := filepath.Join(l.sysDir, entry.Name(), "name")
			data, err := os.ReadFile(nameFile)
			if err != nil {
				continue
			}
			if strings.TrimSpace(string(data)) == l.cfg.CardLabel {
				return filepath.Join(l.devDir, entry.Name()), nil
			}
		}
	}

	fallback := filepath.Join(l.devDir, fmt.Sprintf("video%d", l.cfg.DeviceNr))
	if _, err := os.Stat(fallback); err != nil {
		return "", fmt.Errorf("virtual video device not found (no %q card in %s, no %s)", l.cfg.CardLabel, l.sysDir, fallback)
	}
	return fallback, nil
}
