package scrcpy

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    *BinaryInfo
		wantErr bool
	}{
		{
			name: "two component version",
			out:  "scrcpy 2.4 <https://github.com/Genymobile/scrcpy>\n",
			want: &BinaryInfo{Version: "2.4", MajorVersion: 2, MinorVersion: 4},
		},
		{
			name: "three component version",
			out:  "scrcpy 2.1.1 <https://github.com/Genymobile/scrcpy>\n",
			want: &BinaryInfo{Version: "2.1.1", MajorVersion: 2, MinorVersion: 1},
		},
		{
			name: "version line not first",
			out:  "INFO: something\nscrcpy 3.0\n",
			want: &BinaryInfo{Version: "3.0", MajorVersion: 3, MinorVersion: 0},
		},
		{
			name:    "garbage",
			out:     "command not found\n",
			wantErr: true,
		},
		{
			name:    "empty",
			out:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVersion(tt.out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectBinaryRejectsOldVersions(t *testing.T) {
	// Point binary resolution at something that exists so only the
	// version gate is under test.
	sh, err := exec.LookPath("sh")
	require.NoError(t, err)
	t.Setenv("ADBCAM_SCRCPY_BINARY", sh)

	tests := []struct {
		version string
		ok      bool
	}{
		{"1.25", false},
		{"2.0", false},
		{"2.1.1", false},
		{"2.2", true},
		{"2.4", true},
		{"3.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
				return []byte("scrcpy " + tt.version + " <https://github.com/Genymobile/scrcpy>\n"), nil
			}

			info, err := DetectBinary(context.Background(), runner)
			if !tt.ok {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "too old")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, info.Version)
			assert.Equal(t, sh, info.Path)
		})
	}
}

func TestDetectBinaryNotFound(t *testing.T) {
	t.Setenv("ADBCAM_SCRCPY_BINARY", "")
	t.Setenv("PATH", t.TempDir())

	_, err := DetectBinary(context.Background(), RunCommand)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scrcpy not found")
}
