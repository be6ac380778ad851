package session

import (
	"context"
	"log/slog"
	"time"

	"adbcam/internal/config"
	"adbcam/internal/pulse"
	"adbcam/internal/scrcpy"
	"adbcam/internal/v4l2"
)

// videoProvisioner backs the virtual camera with the v4l2loopback module.
type videoProvisioner struct {
	loopback *v4l2.Loopback
}

// NewVideoProvisioner returns the kernel-module-backed video provisioner.
func NewVideoProvisioner(cfg config.VideoConfig, log *slog.Logger) VideoProvisioner {
	return &videoProvisioner{loopback: v4l2.NewLoopback(cfg, log)}
}

func (p *videoProvisioner) Acquire(ctx context.Context, _ Config) (Resource, error) {
	path, owned, err := p.loopback.Ensure(ctx)
	if err != nil {
		return Resource{}, err
	}

	// A module someone else loaded stays loaded; unloading it would yank the
	// device out from under whatever software is using it.
	release := func(ctx context.Context) error { return nil }
	if owned {
		release = p.loopback.Unload
	}
	return Resource{Kind: KindVideoDevice, Handle: path, Release: release}, nil
}

// audioProvisioner creates the null sink and the loopback from its monitor.
type audioProvisioner struct {
	client *pulse.Client
}

// NewAudioProvisioner returns the pactl-backed audio provisioner.
func NewAudioProvisioner(client *pulse.Client) AudioProvisioner {
	return &audioProvisioner{client: client}
}

func (p *audioProvisioner) Acquire(ctx context.Context, _ Config) ([]Resource, error) {
	sinkIdx, err := p.client.CreateSink(ctx)
	if err != nil {
		return nil, &ProvisioningError{Kind: KindAudioSink, Err: err}
	}
	resources := []Resource{{
		Kind:   KindAudioSink,
		Handle: sinkIdx,
		Release: func(ctx context.Context) error {
			return p.client.UnloadModule(ctx, sinkIdx)
		},
	}}

	loopIdx, err := p.client.CreateLoopback(ctx)
	if err != nil {
		return resources, &ProvisioningError{Kind: KindAudioLoopback, Err: err}
	}
	resources = append(resources, Resource{
		Kind:   KindAudioLoopback,
		Handle: loopIdx,
		Release: func(ctx context.Context) error {
			return p.client.UnloadModule(ctx, loopIdx)
		},
	})
	return resources, nil
}

// mirrorLauncher starts scrcpy against the acquired devices.
type mirrorLauncher struct {
	bin      string
	mcfg     config.MirrorConfig
	sinkName string
	log      *slog.Logger
}

// NewMirrorLauncher returns a launcher for the given scrcpy binary. sinkName
// is the virtual audio sink the process plays into when audio is enabled.
func NewMirrorLauncher(bin string, mcfg config.MirrorConfig, sinkName string, log *slog.Logger) MirrorLauncher {
	return &mirrorLauncher{bin: bin, mcfg: mcfg, sinkName: sinkName, log: log}
}

// Launch starts the mirror process. The process outlives ctx on purpose:
// stopping it goes through Stop so it can detach from the camera cleanly.
func (l *mirrorLauncher) Launch(_ context.Context, cfg Config, videoDevice string) (MirrorProcess, error) {
	opts := scrcpy.MirrorOptions{
		Serial:      cfg.DeviceSerial,
		CameraID:    cfg.CameraID,
		CameraSize:  cfg.Size.String(),
		CameraFPS:   cfg.FPS,
		VideoDevice: videoDevice,
		Port:        l.mcfg.Port,
		ShowWindow:  l.mcfg.ShowWindow,
	}
	if cfg.AudioEnabled() {
		opts.AudioSource = cfg.AudioSource
		opts.AudioSink = l.sinkName
	}

	proc, err := scrcpy.StartMirror(l.bin, opts, l.log)
	if err != nil {
		return nil, err
	}
	return &mirrorProc{Process: proc, stopTimeout: l.mcfg.StopTimeout}, nil
}

// mirrorProc narrows the graceful-stop window to the configured stop
// timeout; the release deadline the manager passes in stays the hard cap.
type mirrorProc struct {
	*scrcpy.Process
	stopTimeout time.Duration
}

func (p *mirrorProc) Stop(ctx context.Context) error {
	if p.stopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.stopTimeout)
		defer cancel()
	}
	return p.Process.Stop(ctx)
}
