package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder logs every release action so tests can assert exact teardown order.
type recorder struct {
	released []ResourceKind
}

func (r *recorder) release(kind ResourceKind, err error) func(context.Context) error {
	return func(context.Context) error {
		r.released = append(r.released, kind)
		return err
	}
}

type fakeVideo struct {
	err      error
	rec      *recorder
	relErr   error
	acquired int
}

func (f *fakeVideo) Acquire(_ context.Context, _ Config) (Resource, error) {
	if f.err != nil {
		return Resource{}, f.err
	}
	f.acquired++
	return Resource{
		Kind:    KindVideoDevice,
		Handle:  "/dev/video0",
		Release: f.rec.release(KindVideoDevice, f.relErr),
	}, nil
}

type fakeAudio struct {
	sinkErr     error
	loopbackErr error
	rec         *recorder
	sinkRelErr  error
	calls       int
}

func (f *fakeAudio) Acquire(_ context.Context, _ Config) ([]Resource, error) {
	f.calls++
	if f.sinkErr != nil {
		return nil, f.sinkErr
	}
	sink := Resource{
		Kind:    KindAudioSink,
		Handle:  "536870913",
		Release: f.rec.release(KindAudioSink, f.sinkRelErr),
	}
	if f.loopbackErr != nil {
		// Sink was created before the loopback failed; report it for rollback.
		return []Resource{sink}, f.loopbackErr
	}
	loopback := Resource{
		Kind:    KindAudioLoopback,
		Handle:  "536870914",
		Release: f.rec.release(KindAudioLoopback, nil),
	}
	return []Resource{sink, loopback}, nil
}

type fakeProcess struct {
	pid     int
	done    chan error
	rec     *recorder
	stopErr error
}

func (p *fakeProcess) PID() int           { return p.pid }
func (p *fakeProcess) Done() <-chan error { return p.done }
func (p *fakeProcess) Stop(context.Context) error {
	p.rec.released = append(p.rec.released, KindMirrorProcess)
	return p.stopErr
}

type fakeLauncher struct {
	err         error
	proc        *fakeProcess
	gotDevice   string
	launchCalls int
}

func (f *fakeLauncher) Launch(_ context.Context, _ Config, videoDevice string) (MirrorProcess, error) {
	f.launchCalls++
	f.gotDevice = videoDevice
	if f.err != nil {
		return nil, f.err
	}
	return f.proc, nil
}

func testConfig(audio string) Config {
	return Config{
		DeviceSerial: "R58M12ABCDE",
		CameraID:     "0",
		Size:         Size{1280, 720},
		FPS:          30,
		AudioSource:  audio,
	}
}

func newFixture(rec *recorder) (*fakeVideo, *fakeAudio, *fakeLauncher) {
	video := &fakeVideo{rec: rec}
	audio := &fakeAudio{rec: rec}
	launcher := &fakeLauncher{proc: &fakeProcess{pid: 4242, done: make(chan error, 1), rec: rec}}
	return video, audio, launcher
}

func newTestManager(v VideoProvisioner, a AudioProvisioner, l MirrorLauncher) *Manager {
	return NewManager(v, a, l, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestManager_Run_InterruptReleasesEverythingLIFO(t *testing.T) {
	rec := &recorder{}
	video, audio, launcher := newFixture(rec)
	m := newTestManager(video, audio, launcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // interrupt fires as soon as the run starts blocking

	err := m.Run(ctx, testConfig("mic-camcorder"))
	require.NoError(t, err)

	assert.Equal(t, []ResourceKind{
		KindMirrorProcess,
		KindAudioLoopback,
		KindAudioSink,
		KindVideoDevice,
	}, rec.released)
	assert.Equal(t, 0, m.Held())
	assert.Equal(t, "/dev/video0", launcher.gotDevice)
}

func TestManager_Run_NoAudioSkipsAudioResources(t *testing.T) {
	rec := &recorder{}
	video, audio, launcher := newFixture(rec)
	m := newTestManager(video, audio, launcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Run(ctx, testConfig(AudioSourceNone))
	require.NoError(t, err)

	assert.Zero(t, audio.calls)
	assert.Equal(t, []ResourceKind{KindMirrorProcess, KindVideoDevice}, rec.released)
}

func TestManager_Run_VideoFailureLeavesNothingBehind(t *testing.T) {
	rec := &recorder{}
	video, audio, launcher := newFixture(rec)
	video.err = errors.New("modprobe: device or resource busy")
	m := newTestManager(video, audio, launcher)

	err := m.Run(context.Background(), testConfig("mic"))
	require.Error(t, err)

	var pe *ProvisioningError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindVideoDevice, pe.Kind)

	assert.Zero(t, audio.calls)
	assert.Zero(t, launcher.launchCalls)
	assert.Empty(t, rec.released)
	assert.Equal(t, 0, m.Held())
}

func TestManager_Run_SinkFailureReleasesVideoOnly(t *testing.T) {
	rec := &recorder{}
	video, audio, launcher := newFixture(rec)
	audio.sinkErr = errors.New("pactl: connection refused")
	m := newTestManager(video, audio, launcher)

	err := m.Run(context.Background(), testConfig("mic"))
	require.Error(t, err)

	var pe *ProvisioningError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindAudioSink, pe.Kind)

	assert.Zero(t, launcher.launchCalls)
	assert.Equal(t, []ResourceKind{KindVideoDevice}, rec.released)
	assert.Equal(t, 0, m.Held())
}

func TestManager_Run_LoopbackFailureReleasesSinkThenVideo(t *testing.T) {
	rec := &recorder{}
	video, audio, launcher := newFixture(rec)
	audio.loopbackErr = errors.New("pactl: module initialization failed")
	m := newTestManager(video, audio, launcher)

	err := m.Run(context.Background(), testConfig("mic"))
	require.Error(t, err)

	assert.Equal(t, []ResourceKind{KindAudioSink, KindVideoDevice}, rec.released)
	assert.Equal(t, 0, m.Held())
}

func TestManager_Run_LaunchFailureRollsBackAllPriorResources(t *testing.T) {
	rec := &recorder{}
	video, audio, launcher := newFixture(rec)
	launcher.err = errors.New("scrcpy: exec format error")
	m := newTestManager(video, audio, launcher)

	err := m.Run(context.Background(), testConfig("mic"))
	require.Error(t, err)

	var le *LaunchError
	assert.ErrorAs(t, err, &le)

	assert.Equal(t, []ResourceKind{
		KindAudioLoopback,
		KindAudioSink,
		KindVideoDevice,
	}, rec.released)
	assert.Equal(t, 0, m.Held())
}

func TestManager_Run_ProcessCrashIsTerminal(t *testing.T) {
	rec := &recorder{}
	video, audio, launcher := newFixture(rec)
	launcher.proc.done <- errors.New("exit status 1")
	m := newTestManager(video, audio, launcher)

	err := m.Run(context.Background(), testConfig("mic"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror process exited")

	// Crash triggers the same full rollback path, LIFO.
	assert.Equal(t, []ResourceKind{
		KindMirrorProcess,
		KindAudioLoopback,
		KindAudioSink,
		KindVideoDevice,
	}, rec.released)
}

func TestManager_Run_CleanProcessExitIsNotAnError(t *testing.T) {
	rec := &recorder{}
	video, audio, launcher := newFixture(rec)
	launcher.proc.done <- nil
	m := newTestManager(video, audio, launcher)

	err := m.Run(context.Background(), testConfig(AudioSourceNone))
	assert.NoError(t, err)
	assert.Equal(t, 0, m.Held())
}

func TestManager_Run_ReleaseFailureIsCollectedNotFatal(t *testing.T) {
	rec := &recorder{}
	video, audio, launcher := newFixture(rec)
	audio.sinkRelErr = errors.New("pactl: no such module")
	m := newTestManager(video, audio, launcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Run(ctx, testConfig("mic"))
	require.Error(t, err)

	var re *ReleaseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 4, re.Attempted)
	require.Len(t, re.Failures, 1)
	assert.Equal(t, KindAudioSink, re.Failures[0].Kind)

	// The failed sink release did not stop the video device release.
	assert.Equal(t, []ResourceKind{
		KindMirrorProcess,
		KindAudioLoopback,
		KindAudioSink,
		KindVideoDevice,
	}, rec.released)
	assert.Equal(t, 0, m.Held())
}

func TestManager_Run_EveryReleaseIssuedExactlyOnce(t *testing.T) {
	rec := &recorder{}
	video, audio, launcher := newFixture(rec)
	m := newTestManager(video, audio, launcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.Run(ctx, testConfig("mic")))

	counts := map[ResourceKind]int{}
	for _, k := range rec.released {
		counts[k]++
	}
	for kind, n := range counts {
		assert.Equal(t, 1, n, "kind %s released %d times", kind, n)
	}
	assert.Len(t, rec.released, 4)
}

func TestStack_LIFO(t *testing.T) {
	var s Stack
	s.Push(Resource{Kind: KindVideoDevice, Handle: "a"})
	s.Push(Resource{Kind: KindAudioSink, Handle: "b"})

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []ResourceKind{KindVideoDevice, KindAudioSink}, s.Kinds())

	r, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", r.Handle)

	r, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", r.Handle)

	_, ok = s.Pop()
	assert.False(t, ok)
}
