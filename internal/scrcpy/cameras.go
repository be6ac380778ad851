package scrcpy

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNoDevice indicates scrcpy could not reach any adb device.
var ErrNoDevice = errors.New("scrcpy could not find an adb device")

// noDeviceMarker is the message scrcpy prints when adb has no device.
const noDeviceMarker = "Could not find any ADB device"

// listTimeout bounds camera enumeration; scrcpy has to wake the device and
// query the camera service, which takes a few seconds on slow phones.
const listTimeout = 30 * time.Second

// Camera is one camera reported by `scrcpy --list-camera-sizes`.
type Camera struct {
	ID          string   `json:"id"`
	Facing      string   `json:"facing"` // back, front, external
	DefaultSize string   `json:"default_size"`
	FPSRates    []int    `json:"fps_rates"`
	Sizes       []string `json:"sizes"`
}

// HasSize reports whether the camera supports the given WIDTHxHEIGHT size.
func (c Camera) HasSize(size string) bool {
	for _, s := range c.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// HasFPS reports whether the camera supports the given frame rate.
func (c Camera) HasFPS(fps int) bool {
	for _, f := range c.FPSRates {
		if f == fps {
			return true
		}
	}
	return false
}

// MaxFPS returns the highest supported frame rate, or 0 when unknown.
func (c Camera) MaxFPS() int {
	max := 0
	for _, f := range c.FPSRates {
		if f > max {
			max = f
		}
	}
	return max
}

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// RunCommand is the default CommandRunner.
func RunCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ListCameras enumerates the cameras of the given device.
func ListCameras(ctx context.Context, runner CommandRunner, bin, serial string) ([]Camera, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	args := []string{"--list-camera-sizes"}
	if serial != "" {
		args = append([]string{"--serial", serial}, args...)
	}

	out, err := runner(ctx, bin, args...)
	if strings.Contains(string(out), noDeviceMarker) {
		return nil, ErrNoDevice
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("listing cameras timed out after %s", listTimeout)
		}
		return nil, fmt.Errorf("listing cameras: %w: %s", err, lastLine(string(out)))
	}

	return ParseCameraList(string(out)), nil
}

// cameraRe matches camera header lines, e.g.
//
//	--camera-id=0    (back, 4000x3000, fps=[15, 24, 30, 60])
var cameraRe = regexp.MustCompile(`--camera-id=(\d+)\s+\(([^,]+),\s*(\d+x\d+),\s*fps=\[([^\]]+)\]\)`)

// sizeRe matches the indented size lines below a camera header, e.g.
//
//   - 1920x1080
var sizeRe = regexp.MustCompile(`^\s*-\s*(\d+x\d+)\s*$`)

// ParseCameraList parses `scrcpy --list-camera-sizes` output.
func ParseCameraList(out string) []Camera {
	var cameras []Camera

	for _, line := range strings.Split(out, "\n") {
		if m := cameraRe.FindStringSubmatch(line); m != nil {
			cameras = append(cameras, Camera{
				ID:          m[1],
				Facing:      strings.TrimSpace(m[2]),
				DefaultSize: m[3],
				FPSRates:    parseFPSList(m[4]),
			})
			continue
		}
		if m := sizeRe.FindStringSubmatch(line); m != nil && len(cameras) > 0 {
			cam := &cameras[len(cameras)-1]
			cam.Sizes = append(cam.Sizes, m[1])
		}
	}

	return cameras
}

func parseFPSList(s string) []int {
	var rates []int
	for _, part := range strings.Split(s, ",") {
		if fps, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			rates = append(rates, fps)
		}
	}
	return rates
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
