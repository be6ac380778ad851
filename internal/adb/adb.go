// Package adb wraps the Android Debug Bridge CLI for device discovery.
package adb

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"adbcam/internal/util"
)

// DefaultTimeout bounds a single adb invocation. adb hangs indefinitely when
// its server is wedged, so every call gets a deadline.
const DefaultTimeout = 10 * time.Second

// DeviceState is the connection state reported by adb.
type DeviceState string

const (
	StateDevice       DeviceState = "device"
	StateUnauthorized DeviceState = "unauthorized"
	StateOffline      DeviceState = "offline"
)

// Device is one row of `adb devices -l` output.
type Device struct {
	Serial  string      `json:"serial" masq:"secret"`
	State   DeviceState `json:"state"`
	Model   string      `json:"model,omitempty"`
	Product string      `json:"product,omitempty"`
	Name    string      `json:"name,omitempty"`
}

// Usable reports whether the device can be used for mirroring.
func (d Device) Usable() bool {
	return d.State == StateDevice
}

// Label returns a human-readable identifier for selection menus.
func (d Device) Label() string {
	if d.Model != "" {
		return fmt.Sprintf("%s (%s)", d.Serial, d.Model)
	}
	return d.Serial
}

// Client invokes the adb binary.
type Client struct {
	bin     string
	timeout time.Duration
}

// NewClient resolves the adb binary and returns a client.
// The ADBCAM_ADB_BINARY environment variable overrides PATH lookup.
func NewClient() (*Client, error) {
	bin, err := util.FindBinary("adb", "ADBCAM_ADB_BINARY")
	if err != nil {
		return nil, fmt.Errorf("adb not found, install Android platform tools: %w", err)
	}
	return &Client{bin: bin, timeout: DefaultTimeout}, nil
}

// NewClientWithBinary returns a client using an explicit binary path.
func NewClientWithBinary(bin string) *Client {
	return &Client{bin: bin, timeout: DefaultTimeout}
}

// Binary returns the resolved adb binary path.
func (c *Client) Binary() string {
	return c.bin
}

// Devices lists connected devices, including unauthorized and offline ones.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.bin, "devices", "-l").CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("adb devices timed out after %s", c.timeout)
		}
		return nil, fmt.Errorf("adb devices: %w: %s", err, strings.TrimSpace(string(out)))
	}

	return ParseDevices(string(out)), nil
}

// ParseDevices parses `adb devices -l` output.
//
// Example input:
//
//	List of devices attached
//	R58M12ABCDE            device usb:1-2 product:beyond1ltexx model:SM_G973F device:beyond1 transport_id:1
//	192.168.1.20:5555      unauthorized transport_id:2
func ParseDevices(out string) []Device {
	var devices []Device

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		dev := Device{
			Serial: fields[0],
			State:  DeviceState(fields[1]),
		}
		for _, f := range fields[2:] {
			key, value, ok := strings.Cut(f, ":")
			if !ok {
				continue
			}
			switch key {
			case "model":
				dev.Model = strings.ReplaceAll(value, "_", " ")
			case "product":
				dev.Product = value
			case "device":
				dev.Name = value
			}
		}
		devices = append(devices, dev)
	}

	return devices
}
