package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"

	"adbcam/internal/adb"
	"adbcam/internal/config"
	"adbcam/internal/pulse"
	"adbcam/internal/scrcpy"
	"adbcam/internal/v4l2"
)

// doctorCmd checks the host for everything a mirroring session needs.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the host can run a mirroring session",
	Long: `Check the host for the external pieces a session depends on: the adb,
scrcpy, and pactl binaries, the v4l2loopback kernel module, and whether
another mirroring process is already running.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// checkResult is one doctor finding.
type checkResult struct {
	name   string
	ok     bool
	warn   bool
	detail string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	results := []checkResult{
		checkHost(ctx),
		checkADB(ctx),
		checkScrcpy(ctx),
		checkPactl(cfg),
		checkLoopbackModule(ctx, cfg),
		checkRunningMirrors(ctx),
	}

	failed := 0
	for _, r := range results {
		mark := "ok  "
		switch {
		case !r.ok:
			mark = "FAIL"
			failed++
		case r.warn:
			mark = "warn"
		}
		fmt.Printf("[%s] %-20s %s\n", mark, r.name, r.detail)
	}

	if failed > 0 {
		return fmt.Errorf("doctor found %d problem(s)", failed)
	}
	fmt.Println("\nEverything looks ready.")
	return nil
}

func checkHost(ctx context.Context) checkResult {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return checkResult{name: "host", ok: true, warn: true, detail: fmt.Sprintf("could not read host info: %v", err)}
	}
	return checkResult{
		name:   "host",
		ok:     true,
		detail: fmt.Sprintf("%s %s (kernel %s)", info.Platform, info.PlatformVersion, info.KernelVersion),
	}
}

func checkADB(ctx context.Context) checkResult {
	client, err := adb.NewClient()
	if err != nil {
		return checkResult{name: "adb", detail: err.Error()}
	}

	devices, err := client.Devices(ctx)
	if err != nil {
		return checkResult{name: "adb", detail: fmt.Sprintf("%s, but listing devices failed: %v", client.Binary(), err)}
	}

	usable := 0
	for _, d := range devices {
		if d.Usable() {
			usable++
		}
	}
	detail := fmt.Sprintf("%s, %d device(s), %d usable", client.Binary(), len(devices), usable)
	return checkResult{name: "adb", ok: true, warn: usable == 0, detail: detail}
}

func checkScrcpy(ctx context.Context) checkResult {
	info, err := scrcpy.DetectBinary(ctx, scrcpy.RunCommand)
	if err != nil {
		return checkResult{name: "scrcpy", detail: err.Error()}
	}
	return checkResult{name: "scrcpy", ok: true, detail: fmt.Sprintf("%s (version %s)", info.Path, info.Version)}
}

func checkPactl(cfg *config.Config) checkResult {
	client, err := pulse.NewClient(cfg.Audio, slog.Default())
	if err != nil {
		// Audio is optional; a missing pactl only limits the session.
		return checkResult{name: "pactl", ok: true, warn: true, detail: err.Error() + " (audio will be unavailable)"}
	}
	return checkResult{name: "pactl", ok: true, detail: "found, sink name " + client.SinkName()}
}

func checkLoopbackModule(ctx context.Context, cfg *config.Config) checkResult {
	lb := v4l2.NewLoopback(cfg.Video, slog.Default())

	if !lb.Available(ctx) {
		return checkResult{name: "v4l2loopback", detail: "module not installed (install the v4l2loopback-dkms package)"}
	}

	loaded, err := lb.Loaded()
	if err != nil {
		return checkResult{name: "v4l2loopback", ok: true, warn: true, detail: fmt.Sprintf("installed, load state unknown: %v", err)}
	}
	if loaded {
		return checkResult{name: "v4l2loopback", ok: true, detail: "installed and currently loaded (will be reused as-is)"}
	}
	return checkResult{name: "v4l2loopback", ok: true, detail: "installed, will be loaded at session start (needs sudo)"}
}

// checkRunningMirrors looks for scrcpy or adbcam processes already running;
// two producers cannot share the same loopback device.
func checkRunningMirrors(ctx context.Context) checkResult {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return checkResult{name: "running mirrors", ok: true, warn: true, detail: fmt.Sprintf("could not list processes: %v", err)}
	}

	self := int32(os.Getpid())
	var found []string
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if name == "scrcpy" || name == "adbcam" {
			found = append(found, fmt.Sprintf("%s (pid %d)", name, p.Pid))
		}
	}

	if len(found) > 0 {
		return checkResult{name: "running mirrors", ok: true, warn: true, detail: "already running: " + strings.Join(found, ", ")}
	}
	return checkResult{name: "running mirrors", ok: true, detail: "none"}
}
