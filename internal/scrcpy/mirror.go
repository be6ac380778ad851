package scrcpy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
)

// MirrorOptions describe one mirror process invocation.
type MirrorOptions struct {
	Serial      string
	CameraID    string
	CameraSize  string // WIDTHxHEIGHT
	CameraFPS   int
	VideoDevice string // v4l2 sink device path
	Port        int
	// AudioSource is the Android audio source to capture; empty disables
	// audio entirely (--no-audio).
	AudioSource string
	// AudioSink is the PulseAudio sink scrcpy plays captured audio into,
	// applied via PULSE_SINK. Only meaningful when AudioSource is set.
	AudioSink  string
	ShowWindow bool
}

// BuildArgs constructs the scrcpy argument list for the options.
func BuildArgs(o MirrorOptions) []string {
	args := []string{
		"--video-source=camera",
		"--camera-id=" + o.CameraID,
		"--camera-size=" + o.CameraSize,
		"--camera-fps=" + strconv.Itoa(o.CameraFPS),
		"--v4l2-sink=" + o.VideoDevice,
	}
	if o.Serial != "" {
		args = append([]string{"--serial", o.Serial}, args...)
	}
	if o.AudioSource != "" {
		args = append(args, "--audio-source="+o.AudioSource)
	} else {
		args = append(args, "--no-audio")
	}
	if o.Port > 0 {
		args = append(args, "--port="+strconv.Itoa(o.Port))
	}
	if !o.ShowWindow {
		args = append(args, "--no-window")
	}
	return args
}

// Process is a running mirror subprocess.
type Process struct {
	cmd *exec.Cmd
	log *slog.Logger

	// waited is closed once Wait has reaped the process.
	waited  chan struct{}
	waitErr error

	// done delivers the final exit result exactly once.
	done chan error

	disconnected atomic.Bool

	stderrMu    sync.Mutex
	stderrLines []string
}

// maxStderrLines is how many recent stderr lines are kept for diagnostics.
const maxStderrLines = 50

// StartMirror launches the mirror process. The process is deliberately not
// bound to a context: cancellation must go through Stop so the process gets
// a chance to detach from the camera and the v4l2 device cleanly.
func StartMirror(bin string, o MirrorOptions, log *slog.Logger) (*Process, error) {
	if log == nil {
		log = slog.Default()
	}

	cmd := exec.Command(bin, BuildArgs(o)...)
	if o.AudioSource != "" && o.AudioSink != "" {
		cmd.Env = append(os.Environ(), "PULSE_SINK="+o.AudioSink)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", bin, err)
	}

	p := &Process{
		cmd:    cmd,
		log:    log,
		waited: make(chan struct{}),
		done:   make(chan error, 1),
	}

	monitorDone := make(chan struct{})
	go p.monitorStderr(stderr, monitorDone)

	go func() {
		err := cmd.Wait()
		<-monitorDone

		if err != nil && p.disconnected.Load() {
			err = fmt.Errorf("device disconnected: %w", err)
		}
		p.waitErr = err
		close(p.waited)
		p.done <- err
	}()

	return p, nil
}

// PID returns the process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Done fires once when the process exits; the value is nil for exit status 0.
func (p *Process) Done() <-chan error {
	return p.done
}

// Disconnected reports whether the process output indicated the phone went
// away.
func (p *Process) Disconnected() bool {
	return p.disconnected.Load()
}

// StderrLines returns the recent stderr lines for diagnostics.
func (p *Process) StderrLines() []string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()
	lines := make([]string, len(p.stderrLines))
	copy(lines, p.stderrLines)
	return lines
}

// Stop requests graceful termination via SIGTERM and escalates to SIGKILL
// when ctx expires before the process exits. Stopping an already-exited
// process is a no-op.
func (p *Process) Stop(ctx context.Context) error {
	select {
	case <-p.waited:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// The process can exit between the waited check and the signal.
		select {
		case <-p.waited:
			return nil
		default:
			return fmt.Errorf("signaling mirror process: %w", err)
		}
	}

	select {
	case <-p.waited:
		return nil
	case <-ctx.Done():
	}

	p.log.Warn("mirror process ignored SIGTERM, killing", slog.Int("pid", p.PID()))
	if err := p.cmd.Process.Kill(); err != nil {
		select {
		case <-p.waited:
			return nil
		default:
			return fmt.Errorf("killing mirror process: %w", err)
		}
	}
	<-p.waited
	return nil
}

// disconnectMarkers are stderr fragments meaning the phone is gone.
var disconnectMarkers = []string{
	"Device disconnected",
	noDeviceMarker,
}

// monitorStderr scans the process stderr, keeps a ring of recent lines, and
// surfaces errors and disconnects in the log.
func (p *Process) monitorStderr(r io.Reader, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		p.stderrMu.Lock()
		if len(p.stderrLines) >= maxStderrLines {
			p.stderrLines = p.stderrLines[1:]
		}
		p.stderrLines = append(p.stderrLines, line)
		p.stderrMu.Unlock()

		p.classifyLine(line)
	}
}

func (p *Process) classifyLine(line string) {
	for _, marker := range disconnectMarkers {
		if strings.Contains(line, marker) {
			if p.disconnected.CompareAndSwap(false, true) {
				p.log.Warn("device disconnected", slog.String("detail", line))
			}
			return
		}
	}

	switch {
	case strings.Contains(line, "ERROR:") || strings.Contains(line, "FATAL:"):
		p.log.Error("scrcpy", slog.String("line", line))
	case strings.Contains(line, "WARN:"):
		p.log.Warn("scrcpy", slog.String("line", line))
	default:
		p.log.Debug("scrcpy", slog.String("line", line))
	}
}
