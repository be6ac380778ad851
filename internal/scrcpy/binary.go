// Package scrcpy wraps the scrcpy CLI: binary detection, camera
// enumeration, and the mirror process lifecycle.
package scrcpy

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"adbcam/internal/util"
)

// detectTimeout bounds the version probe.
const detectTimeout = 10 * time.Second

// BinaryInfo contains information about the scrcpy installation.
type BinaryInfo struct {
	Path         string `json:"path"`
	Version      string `json:"version"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
}

// versionRe matches the first line of `scrcpy --version`, e.g.
// "scrcpy 2.4 <https://github.com/Genymobile/scrcpy>".
var versionRe = regexp.MustCompile(`scrcpy\s+(\d+)\.(\d+)(?:\.(\d+))?`)

// DetectBinary locates scrcpy and probes its version.
// The ADBCAM_SCRCPY_BINARY environment variable overrides PATH lookup.
// Camera mirroring needs scrcpy 2.2 or newer; older versions are rejected
// here rather than failing mid-run with an unknown-option error.
func DetectBinary(ctx context.Context, runner CommandRunner) (*BinaryInfo, error) {
	path, err := util.FindBinary("scrcpy", "ADBCAM_SCRCPY_BINARY")
	if err != nil {
		return nil, fmt.Errorf("scrcpy not found: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	out, err := runner(ctx, path, "--version")
	if err != nil {
		return nil, fmt.Errorf("probing scrcpy version: %w: %s", err, strings.TrimSpace(string(out)))
	}

	info, err := parseVersion(string(out))
	if err != nil {
		return nil, err
	}
	info.Path = path

	if info.MajorVersion < 2 || (info.MajorVersion == 2 && info.MinorVersion < 2) {
		return nil, fmt.Errorf("scrcpy %s is too old, camera mirroring needs 2.2+", info.Version)
	}
	return info, nil
}

func parseVersion(out string) (*BinaryInfo, error) {
	m := versionRe.FindStringSubmatch(out)
	if m == nil {
		return nil, fmt.Errorf("unrecognized scrcpy version output: %q", firstLine(out))
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	version := m[1] + "." + m[2]
	if m[3] != "" {
		version += "." + m[3]
	}
	return &BinaryInfo{Version: version, MajorVersion: major, MinorVersion: minor}, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
