package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"adbcam/internal/adb"
	"adbcam/internal/config"
	"adbcam/internal/observability"
	"adbcam/internal/pulse"
	"adbcam/internal/scrcpy"
	"adbcam/internal/session"
)

var (
	startDevice string
	startCamera string
	startSize   string
	startFPS    int
	startMic    string
	startYes    bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start mirroring a phone camera as a virtual webcam",
	Long: `Start a mirroring session.

The session sets up, in order: the v4l2loopback virtual video device, the
virtual audio sink and loopback (unless audio is disabled), and the scrcpy
mirror process. Anything not pinned down by a flag is asked interactively.
On exit (Ctrl-C or the mirror process ending) everything is released in
reverse order.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVar(&startDevice, "device", "", "device serial to mirror")
	startCmd.Flags().StringVar(&startCamera, "camera", "", "camera id to mirror")
	startCmd.Flags().StringVar(&startSize, "size", "", "capture resolution (WIDTHxHEIGHT)")
	startCmd.Flags().IntVar(&startFPS, "fps", 0, "capture frame rate")
	startCmd.Flags().StringVar(&startMic, "mic", "", "microphone source (none, mic, mic-unprocessed, mic-camcorder, mic-voice-recognition, mic-voice-communication)")
	startCmd.Flags().BoolVarP(&startYes, "yes", "y", false, "accept defaults without prompting")

	startCmd.Flags().Int("port", config.DefaultMirrorPort, "localhost port for the device tunnel")
	startCmd.Flags().Bool("show-window", false, "keep the scrcpy preview window open")
	mustBindPFlag("mirror.port", startCmd.Flags().Lookup("port"))
	mustBindPFlag("mirror.show_window", startCmd.Flags().Lookup("show-window"))
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := observability.WithRunID(slog.Default(), observability.NewRunID())

	// The signal handler is installed before anything is allocated so an
	// early Ctrl-C cancels cleanly instead of killing the process mid-setup.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bin, err := scrcpy.DetectBinary(ctx, scrcpy.RunCommand)
	if err != nil {
		return err
	}
	log.Debug("scrcpy detected", slog.String("path", bin.Path), slog.String("version", bin.Version))

	adbClient, err := adb.NewClient()
	if err != nil {
		return err
	}
	devices, err := adbClient.Devices(ctx)
	if err != nil {
		return err
	}

	sel := session.NewSelector(os.Stdin, os.Stdout)

	scfg, err := buildSessionConfig(ctx, sel, bin, devices)
	if err != nil {
		return err
	}
	log.Info("session configured", slog.Any("session", scfg))

	printSummary(cfg, scfg)

	if !startYes {
		ok, err := sel.Confirm("Start mirroring?", true)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	video := session.NewVideoProvisioner(cfg.Video, log)

	var audio session.AudioProvisioner
	sinkName := ""
	if scfg.AudioEnabled() {
		pa, err := pulse.NewClient(cfg.Audio, log)
		if err != nil {
			return err
		}
		audio = session.NewAudioProvisioner(pa)
		sinkName = pa.SinkName()
	}

	launcher := session.NewMirrorLauncher(bin.Path, cfg.Mirror, sinkName, log)
	manager := session.NewManager(video, audio, launcher, cfg.Mirror.ReleaseTimeout, log)

	fmt.Println("\nMirroring. Press Ctrl-C to stop.")
	return manager.Run(ctx, scfg)
}

// buildSessionConfig resolves every session parameter, from its flag when
// given (validated against what the device reports), otherwise
// interactively. With --yes unanswered prompts take their defaults.
func buildSessionConfig(ctx context.Context, sel *session.Selector, bin *scrcpy.BinaryInfo, devices []adb.Device) (session.Config, error) {
	device, err := resolveDevice(sel, devices)
	if err != nil {
		return session.Config{}, err
	}

	cameras, err := scrcpy.ListCameras(ctx, scrcpy.RunCommand, bin.Path, device.Serial)
	if err != nil {
		return session.Config{}, err
	}

	camera, err := resolveCamera(sel, cameras)
	if err != nil {
		return session.Config{}, err
	}

	size, err := resolveSize(sel, camera)
	if err != nil {
		return session.Config{}, err
	}

	fps, err := resolveFPS(sel, camera)
	if err != nil {
		return session.Config{}, err
	}

	mic, err := resolveMic(sel)
	if err != nil {
		return session.Config{}, err
	}

	return session.Config{
		DeviceSerial: device.Serial,
		CameraID:     camera.ID,
		Size:         size,
		FPS:          fps,
		AudioSource:  mic,
	}, nil
}

func resolveDevice(sel *session.Selector, devices []adb.Device) (adb.Device, error) {
	if startDevice != "" {
		for _, d := range devices {
			if d.Serial != startDevice {
				continue
			}
			if !d.Usable() {
				return adb.Device{}, &session.ValidationError{Field: "device", Value: startDevice, Reason: fmt.Sprintf("device is %s", d.State)}
			}
			return d, nil
		}
		return adb.Device{}, &session.ValidationError{Field: "device", Value: startDevice, Reason: "not connected"}
	}

	if startYes {
		for _, d := range devices {
			if d.Usable() {
				return d, nil
			}
		}
		return adb.Device{}, session.ErrNoDevices
	}
	return sel.SelectDevice(devices)
}

func resolveCamera(sel *session.Selector, cameras []scrcpy.Camera) (scrcpy.Camera, error) {
	if startCamera != "" {
		for _, c := range cameras {
			if c.ID == startCamera {
				return c, nil
			}
		}
		return scrcpy.Camera{}, &session.ValidationError{Field: "camera", Value: startCamera, Reason: "device does not report this camera id"}
	}

	if startYes {
		if len(cameras) == 0 {
			return scrcpy.Camera{}, &session.ValidationError{Field: "camera", Value: "", Reason: "device reported no cameras"}
		}
		return cameras[0], nil
	}
	return sel.SelectCamera(cameras)
}

func resolveSize(sel *session.Selector, camera scrcpy.Camera) (session.Size, error) {
	if startSize != "" {
		size, err := session.ParseSize(startSize)
		if err != nil {
			return session.Size{}, &session.ValidationError{Field: "size", Value: startSize, Reason: err.Error()}
		}
		if !camera.HasSize(size.String()) {
			return session.Size{}, &session.ValidationError{Field: "size", Value: startSize, Reason: "not supported by the selected camera"}
		}
		return size, nil
	}

	if startYes {
		if camera.HasSize("1920x1080") {
			return session.Size{Width: 1920, Height: 1080}, nil
		}
		return session.ParseSize(camera.DefaultSize)
	}
	return sel.SelectSize(camera)
}

func resolveFPS(sel *session.Selector, camera scrcpy.Camera) (int, error) {
	if startFPS != 0 {
		if !camera.HasFPS(startFPS) {
			return 0, &session.ValidationError{Field: "fps", Value: fmt.Sprint(startFPS), Reason: "not supported by the selected camera"}
		}
		return startFPS, nil
	}

	if startYes {
		if fps := camera.MaxFPS(); fps > 0 {
			return fps, nil
		}
		return 0, &session.ValidationError{Field: "fps", Value: "", Reason: "camera reported no frame rates"}
	}
	return sel.SelectFPS(camera)
}

func resolveMic(sel *session.Selector) (string, error) {
	if startMic != "" {
		if !session.ValidMicSource(startMic) {
			return "", &session.ValidationError{Field: "mic", Value: startMic, Reason: "unknown microphone source"}
		}
		return startMic, nil
	}

	if startYes {
		return session.DefaultMicSource, nil
	}
	return sel.SelectMicSource()
}

// printSummary tells the user where the virtual devices will appear.
func printSummary(cfg *config.Config, scfg session.Config) {
	fmt.Printf("\nVirtual camera:     %s (label %q)\n", cfg.Video.DevicePath(), cfg.Video.CardLabel)
	if scfg.AudioEnabled() {
		fmt.Printf("Virtual microphone: %s (source %s)\n", cfg.Audio.MonitorSource(), scfg.AudioSource)
	} else {
		fmt.Println("Virtual microphone: disabled")
	}
	fmt.Printf("Capture:            camera %s, %s @ %d fps\n", scfg.CameraID, scfg.Size, scfg.FPS)
}
