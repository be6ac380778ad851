package pulse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adbcam/internal/config"
)

type fakeRunner struct {
	calls  [][]string
	output []byte
	err    error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.output, f.err
}

func newTestClient(runner *fakeRunner) *Client {
	return &Client{
		bin:    "pactl",
		cfg:    config.AudioConfig{SinkName: "AdbCam", LoopbackLatencyMs: 20},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		runner: runner.run,
	}
}

func TestClient_CreateSink(t *testing.T) {
	runner := &fakeRunner{output: []byte("536870913\n")}
	c := newTestClient(runner)

	index, err := c.CreateSink(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "536870913", index)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, []string{
		"pactl", "load-module", "module-null-sink",
		"sink_name=AdbCam",
		"sink_properties=device.description=AdbCam",
	}, call)
}

func TestClient_CreateLoopback(t *testing.T) {
	runner := &fakeRunner{output: []byte("536870914\n")}
	c := newTestClient(runner)

	index, err := c.CreateLoopback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "536870914", index)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		"pactl", "load-module", "module-loopback",
		"source=AdbCam.monitor",
		"latency_msec=20",
	}, runner.calls[0])
}

func TestClient_LoadModule_CommandFailure(t *testing.T) {
	runner := &fakeRunner{output: []byte("Failure: Module initialization failed"), err: errors.New("exit status 1")}
	c := newTestClient(runner)

	_, err := c.CreateSink(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Module initialization failed")
}

func TestClient_LoadModule_GarbageOutput(t *testing.T) {
	runner := &fakeRunner{output: []byte("not-a-module-index")}
	c := newTestClient(runner)

	_, err := c.CreateSink(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected output")
}

func TestClient_UnloadModule(t *testing.T) {
	runner := &fakeRunner{}
	c := newTestClient(runner)

	require.NoError(t, c.UnloadModule(context.Background(), "536870913"))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"pactl", "unload-module", "536870913"}, runner.calls[0])
}

func TestClient_UnloadModule_Failure(t *testing.T) {
	runner := &fakeRunner{output: []byte("Failure: No such entity"), err: errors.New("exit status 1")}
	c := newTestClient(runner)

	err := c.UnloadModule(context.Background(), "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No such entity")
}

func TestClient_SinkName(t *testing.T) {
	c := newTestClient(&fakeRunner{})
	assert.Equal(t, "AdbCam", c.SinkName())
}
