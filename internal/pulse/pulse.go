// Package pulse drives the audio server via pactl to create and remove the
// virtual sink and loopback that expose the phone microphone.
package pulse

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"adbcam/internal/config"
	"adbcam/internal/util"
)

// Client invokes pactl.
type Client struct {
	bin string
	cfg config.AudioConfig
	log *slog.Logger

	runner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewClient resolves the pactl binary and returns a client.
// The ADBCAM_PACTL_BINARY environment variable overrides PATH lookup.
func NewClient(cfg config.AudioConfig, log *slog.Logger) (*Client, error) {
	bin, err := util.FindBinary("pactl", "ADBCAM_PACTL_BINARY")
	if err != nil {
		return nil, fmt.Errorf("pactl not found, is PulseAudio or PipeWire installed: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{bin: bin, cfg: cfg, log: log, runner: runCommand}, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CreateSink loads a null sink named per the configuration and returns its
// module index.
func (c *Client) CreateSink(ctx context.Context) (string, error) {
	return c.loadModule(ctx, "module-null-sink",
		"sink_name="+c.cfg.SinkName,
		fmt.Sprintf("sink_properties=device.description=%s", c.cfg.SinkName),
	)
}

// CreateLoopback loads a loopback from the sink monitor so the phone audio
// is both audible and selectable, and returns its module index.
func (c *Client) CreateLoopback(ctx context.Context) (string, error) {
	return c.loadModule(ctx, "module-loopback",
		"source="+c.cfg.MonitorSource(),
		fmt.Sprintf("latency_msec=%d", c.cfg.LoopbackLatencyMs),
	)
}

// UnloadModule removes a previously loaded module by index.
func (c *Client) UnloadModule(ctx context.Context, index string) error {
	out, err := c.runner(ctx, c.bin, "unload-module", index)
	if err != nil {
		return fmt.Errorf("pactl unload-module %s: %w: %s", index, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// SinkName returns the configured sink name.
func (c *Client) SinkName() string {
	return c.cfg.SinkName
}

// loadModule runs `pactl load-module` and parses the module index it prints.
func (c *Client) loadModule(ctx context.Context, module string, args ...string) (string, error) {
	cmdArgs := append([]string{"load-module", module}, args...)
	out, err := c.runner(ctx, c.bin, cmdArgs...)
	if err != nil {
		return "", fmt.Errorf("pactl load-module %s: %w: %s", module, err, strings.TrimSpace(string(out)))
	}

	index := strings.TrimSpace(string(out))
	if _, err := strconv.Atoi(index); err != nil {
		return "", fmt.Errorf("pactl load-module %s: unexpected output %q", module, index)
	}
	c.log.Debug("module loaded", slog.String("module", module), slog.String("index", index))
	return index, nil
}
