package session

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"adbcam/internal/adb"
	"adbcam/internal/scrcpy"
)

// Selector runs the interactive selection menus. All reads and writes go
// through the injected streams so the flow is scriptable and testable.
type Selector struct {
	in  *bufio.Reader
	out io.Writer
}

// NewSelector returns a Selector reading answers from in and printing menus
// to out.
func NewSelector(in io.Reader, out io.Writer) *Selector {
	return &Selector{in: bufio.NewReader(in), out: out}
}

// readLine reads one trimmed input line. An exhausted input stream is an
// error: the selection flow must never silently fall through to defaults
// when stdin is closed.
func (s *Selector) readLine() (string, error) {
	line, err := s.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading selection: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Selector) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// SelectDevice picks the device to mirror. A single usable device is chosen
// automatically; multiple devices get a menu. Unusable devices (offline,
// unauthorized) are listed for context but not selectable.
func (s *Selector) SelectDevice(devices []adb.Device) (adb.Device, error) {
	var usable []adb.Device
	for _, d := range devices {
		if d.Usable() {
			usable = append(usable, d)
		} else {
			s.printf("Ignoring %s: %s\n", d.Label(), d.State)
		}
	}

	switch len(usable) {
	case 0:
		return adb.Device{}, ErrNoDevices
	case 1:
		s.printf("Using device %s\n", usable[0].Label())
		return usable[0], nil
	}

	s.printf("\nConnected devices:\n")
	for i, d := range usable {
		s.printf("  [%d] %s\n", i+1, d.Label())
	}

	idx, err := s.pickIndex("device", len(usable), 1)
	if err != nil {
		return adb.Device{}, err
	}
	return usable[idx-1], nil
}

// SelectCamera picks the camera to mirror; the first camera (normally the
// main back camera) is the default.
func (s *Selector) SelectCamera(cameras []scrcpy.Camera) (scrcpy.Camera, error) {
	if len(cameras) == 0 {
		return scrcpy.Camera{}, &ValidationError{Field: "camera", Value: "", Reason: "device reported no cameras"}
	}
	if len(cameras) == 1 {
		s.printf("Using camera %s (%s)\n", cameras[0].ID, cameras[0].Facing)
		return cameras[0], nil
	}

	s.printf("\nCameras:\n")
	for i, c := range cameras {
		s.printf("  [%d] id=%s %s, up to %s, fps %v\n", i+1, c.ID, c.Facing, c.DefaultSize, c.FPSRates)
	}

	idx, err := s.pickIndex("camera", len(cameras), 1)
	if err != nil {
		return scrcpy.Camera{}, err
	}
	return cameras[idx-1], nil
}

// SelectSize picks the capture resolution. Common webcam resolutions the
// camera supports are listed first, the camera's remaining sizes after. A
// WIDTHxHEIGHT value can be typed directly instead of a menu number.
func (s *Selector) SelectSize(cam scrcpy.Camera) (Size, error) {
	ordered := orderedSizes(cam)
	if len(ordered) == 0 {
		return Size{}, &ValidationError{Field: "size", Value: "", Reason: "camera reported no sizes"}
	}

	defIdx := 1
	for i, sz := range ordered {
		if sz == "1920x1080" {
			defIdx = i + 1
			break
		}
	}

	s.printf("\nResolutions:\n")
	for i, sz := range ordered {
		s.printf("  [%d] %s\n", i+1, sz)
	}

	for {
		s.printf("Select resolution [%d]: ", defIdx)
		line, err := s.readLine()
		if err != nil {
			return Size{}, err
		}
		if line == "" {
			return ParseSize(ordered[defIdx-1])
		}
		if n, err := strconv.Atoi(line); err == nil {
			if n >= 1 && n <= len(ordered) {
				return ParseSize(ordered[n-1])
			}
			s.printf("Enter a number between 1 and %d.\n", len(ordered))
			continue
		}
		size, err := ParseSize(line)
		if err != nil {
			s.printf("%v\n", err)
			continue
		}
		if !cam.HasSize(size.String()) {
			return Size{}, &ValidationError{Field: "size", Value: size.String(), Reason: "not supported by the selected camera"}
		}
		return size, nil
	}
}

// SelectFPS picks the frame rate; the camera's highest rate is the default.
func (s *Selector) SelectFPS(cam scrcpy.Camera) (int, error) {
	if len(cam.FPSRates) == 0 {
		return 0, &ValidationError{Field: "fps", Value: "", Reason: "camera reported no frame rates"}
	}
	def := cam.MaxFPS()

	s.printf("\nFrame rates: %v\n", cam.FPSRates)
	for {
		s.printf("Select fps [%d]: ", def)
		line, err := s.readLine()
		if err != nil {
			return 0, err
		}
		if line == "" {
			return def, nil
		}
		fps, err := strconv.Atoi(line)
		if err != nil {
			s.printf("Enter a number.\n")
			continue
		}
		if !cam.HasFPS(fps) {
			return 0, &ValidationError{Field: "fps", Value: line, Reason: "not supported by the selected camera"}
		}
		return fps, nil
	}
}

// SelectMicSource picks the Android audio source for the virtual microphone,
// with 0 disabling audio entirely.
func (s *Selector) SelectMicSource() (string, error) {
	defIdx := 0
	s.printf("\nMicrophone sources:\n")
	s.printf("  [0] No audio\n")
	for i, src := range MicSources {
		s.printf("  [%d] %s (%s)\n", i+1, src.Description, src.ID)
		if src.ID == DefaultMicSource {
			defIdx = i + 1
		}
	}

	for {
		s.printf("Select microphone source [%d]: ", defIdx)
		line, err := s.readLine()
		if err != nil {
			return "", err
		}
		if line == "" {
			return MicSources[defIdx-1].ID, nil
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 0 || n > len(MicSources) {
			s.printf("Enter a number between 0 and %d.\n", len(MicSources))
			continue
		}
		if n == 0 {
			return AudioSourceNone, nil
		}
		return MicSources[n-1].ID, nil
	}
}

// Confirm asks a yes/no question.
func (s *Selector) Confirm(question string, def bool) (bool, error) {
	hint := "Y/n"
	if !def {
		hint = "y/N"
	}
	for {
		s.printf("%s [%s]: ", question, hint)
		line, err := s.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		s.printf("Answer y or n.\n")
	}
}

// pickIndex reads a 1-based menu selection.
func (s *Selector) pickIndex(what string, max, def int) (int, error) {
	for {
		s.printf("Select %s [%d]: ", what, def)
		line, err := s.readLine()
		if err != nil {
			return 0, err
		}
		if line == "" {
			return def, nil
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > max {
			s.printf("Enter a number between 1 and %d.\n", max)
			continue
		}
		return n, nil
	}
}

// orderedSizes lists the camera's sizes with common webcam resolutions
// first, without duplicates.
func orderedSizes(cam scrcpy.Camera) []string {
	var ordered []string
	seen := make(map[string]bool)

	for _, sz := range CommonSizes {
		s := sz.String()
		if cam.HasSize(s) && !seen[s] {
			ordered = append(ordered, s)
			seen[s] = true
		}
	}
	for _, s := range cam.Sizes {
		if !seen[s] {
			ordered = append(ordered, s)
			seen[s] = true
		}
	}
	return ordered
}
