// Package session holds the per-run configuration, the interactive
// selection flow, and the resource lifecycle manager that provisions and
// tears down the virtual devices.
package session

import (
	"fmt"
	"strconv"
	"strings"
)

// AudioSourceNone disables audio capture for the run.
const AudioSourceNone = "none"

// Size is a video resolution in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ParseSize parses a "WIDTHxHEIGHT" string.
func ParseSize(s string) (Size, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return Size{}, fmt.Errorf("invalid size %q, expected WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Size{}, fmt.Errorf("invalid size %q: %w", s, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Size{}, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if width < 1 || height < 1 {
		return Size{}, fmt.Errorf("invalid size %q: dimensions must be positive", s)
	}
	return Size{Width: width, Height: height}, nil
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// IsZero reports whether the size is unset.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// Config is the immutable record of user choices produced by the selection
// stage and consumed by the lifecycle manager.
type Config struct {
	DeviceSerial string `masq:"secret"`
	CameraID     string
	Size         Size
	FPS          int
	// AudioSource is an Android audio source name, or AudioSourceNone.
	AudioSource string
}

// AudioEnabled reports whether the run captures audio.
func (c Config) AudioEnabled() bool {
	return c.AudioSource != "" && c.AudioSource != AudioSourceNone
}

// MicSource describes one Android audio source selectable for capture.
type MicSource struct {
	ID          string
	Description string
}

// MicSources are the Android audio sources scrcpy can capture, in menu
// order. The camcorder profile is the default: it is tuned for video
// recording and the least surprising over a webcam.
var MicSources = []MicSource{
	{"mic", "Standard microphone"},
	{"mic-unprocessed", "Unprocessed (raw) microphone"},
	{"mic-camcorder", "Microphone tuned for video recording"},
	{"mic-voice-recognition", "Microphone tuned for voice recognition"},
	{"mic-voice-communication", "Microphone tuned for voice calls"},
}

// DefaultMicSource is the mic source used when the user accepts the default.
const DefaultMicSource = "mic-camcorder"

// ValidMicSource reports whether id names a known mic source or "none".
func ValidMicSource(id string) bool {
	if id == AudioSourceNone {
		return true
	}
	for _, s := range MicSources {
		if s.ID == id {
			return true
		}
	}
	return false
}

// CommonSizes are resolutions listed first in the selection menu, most
// likely picks on top.
var CommonSizes = []Size{
	{1920, 1080},
	{1280, 720},
	{640, 480},
	{1920, 1440},
	{2560, 1440},
	{3840, 2160},
}
