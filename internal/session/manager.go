package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// VideoProvisioner allocates the virtual video device for a run.
type VideoProvisioner interface {
	// Acquire reserves the virtual video device and returns a Resource whose
	// Handle is the device path.
	Acquire(ctx context.Context, cfg Config) (Resource, error)
}

// AudioProvisioner allocates the virtual audio sink and loopback for a run.
type AudioProvisioner interface {
	// Acquire creates the sink and loopback. Resources created before a
	// failure are still returned alongside the error so the caller can roll
	// them back; nothing is ever created without being reported.
	Acquire(ctx context.Context, cfg Config) ([]Resource, error)
}

// MirrorProcess is a running mirror subprocess.
type MirrorProcess interface {
	PID() int
	// Done fires once when the process exits on its own; the value is the
	// process exit error (nil for exit status 0).
	Done() <-chan error
	// Stop requests graceful termination, escalating to a forced kill when
	// ctx expires. Stopping an already-exited process is not an error.
	Stop(ctx context.Context) error
}

// MirrorLauncher starts the mirror subprocess bound to the acquired video
// device (and, when audio is enabled, the virtual sink it was constructed
// with).
type MirrorLauncher interface {
	Launch(ctx context.Context, cfg Config, videoDevice string) (MirrorProcess, error)
}

// Manager owns the resource stack for one run: it acquires the virtual
// devices in fixed order, launches the mirror process, blocks until the
// process exits or the run is interrupted, and releases everything it
// acquired in reverse order.
type Manager struct {
	video    VideoProvisioner
	audio    AudioProvisioner
	launcher MirrorLauncher

	releaseTimeout time.Duration
	log            *slog.Logger

	stack Stack
}

// NewManager creates a lifecycle manager. releaseTimeout bounds each
// individual release action during teardown.
func NewManager(video VideoProvisioner, audio AudioProvisioner, launcher MirrorLauncher, releaseTimeout time.Duration, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		video:          video,
		audio:          audio,
		launcher:       launcher,
		releaseTimeout: releaseTimeout,
		log:            log,
	}
}

// Run executes one session: acquire video device, then audio sink and
// loopback (skipped when no audio source is selected), then the mirror
// process. Any acquisition failure rolls back everything already acquired
// and is returned. On success Run blocks until the mirror process exits or
// ctx is cancelled (the interrupt), then tears down.
//
// The returned error is nil only when the run ended by interrupt or clean
// process exit and every release action succeeded.
func (m *Manager) Run(ctx context.Context, cfg Config) error {
	video, err := m.video.Acquire(ctx, cfg)
	if err != nil {
		m.rollback()
		return provisioningError(KindVideoDevice, err)
	}
	m.stack.Push(video)
	m.log.Info("virtual video device ready", slog.String("path", video.Handle))

	if cfg.AudioEnabled() {
		resources, err := m.audio.Acquire(ctx, cfg)
		for _, r := range resources {
			m.stack.Push(r)
		}
		if err != nil {
			m.rollback()
			return provisioningError(KindAudioSink, err)
		}
		for _, r := range resources {
			m.log.Info("audio resource ready",
				slog.String("kind", string(r.Kind)), slog.String("handle", r.Handle))
		}
	}

	proc, err := m.launcher.Launch(ctx, cfg, video.Handle)
	if err != nil {
		m.rollback()
		return &LaunchError{Err: err}
	}
	m.stack.Push(Resource{
		Kind:    KindMirrorProcess,
		Handle:  strconv.Itoa(proc.PID()),
		Release: proc.Stop,
	})
	m.log.Info("mirror process running", slog.Int("pid", proc.PID()))

	select {
	case procErr := <-proc.Done():
		// Loss of the mirror process is terminal, never restarted.
		releaseErr := m.teardown()
		if procErr != nil {
			if releaseErr != nil {
				return errors.Join(fmt.Errorf("mirror process exited: %w", procErr), releaseErr)
			}
			return fmt.Errorf("mirror process exited: %w", procErr)
		}
		m.log.Info("mirror process exited cleanly")
		return releaseErr
	case <-ctx.Done():
		m.log.Info("stop requested, releasing resources")
		return m.teardown()
	}
}

// Held reports how many resources the manager currently holds.
func (m *Manager) Held() int {
	return m.stack.Len()
}

// rollback releases everything acquired so far after a failed acquisition.
// Release failures during rollback are logged; the acquisition error is the
// one that reaches the user.
func (m *Manager) rollback() {
	if err := m.teardown(); err != nil {
		m.log.Error("rollback incomplete", slog.String("error", err.Error()))
	}
}

// teardown pops the resource stack, issuing each entry's release action
// exactly once. A failed release does not stop the remaining entries. Each
// release runs under its own deadline so an unresponsive audio server or
// module unload cannot hang shutdown. The context is deliberately detached
// from the run context: an interrupt arriving mid-teardown must not abort
// the remaining releases.
func (m *Manager) teardown() error {
	var failures []ReleaseFailure
	attempted := 0

	for {
		res, ok := m.stack.Pop()
		if !ok {
			break
		}
		attempted++

		ctx, cancel := context.WithTimeout(context.Background(), m.releaseTimeout)
		err := res.Release(ctx)
		cancel()

		if err != nil {
			m.log.Error("release failed",
				slog.String("kind", string(res.Kind)),
				slog.String("handle", res.Handle),
				slog.String("error", err.Error()))
			failures = append(failures, ReleaseFailure{Kind: res.Kind, Handle: res.Handle, Err: err})
			continue
		}
		m.log.Info("released",
			slog.String("kind", string(res.Kind)), slog.String("handle", res.Handle))
	}

	if len(failures) > 0 {
		return &ReleaseError{Attempted: attempted, Failures: failures}
	}
	return nil
}

// provisioningError wraps err as a ProvisioningError of the given kind,
// unless the provisioner already produced one with a more precise kind.
func provisioningError(kind ResourceKind, err error) error {
	var pe *ProvisioningError
	if errors.As(err, &pe) {
		return err
	}
	return &ProvisioningError{Kind: kind, Err: err}
}
