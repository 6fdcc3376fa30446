package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(dir, "results.json"), false},
		{"nested new file", filepath.Join(dir, "runs", "plate1", "results.json"), false},
		{"dot segments that stay inside", filepath.Join(dir, "runs", "..", "results.json"), false},
		{"parent escape", filepath.Join(dir, "..", "results.json"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, dir)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePathWithinDirectorySymlink(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(dir, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	err := ValidatePathWithinDirectory(filepath.Join(link, "results.json"), dir)
	assert.Error(t, err)
}

func TestValidateExportPath(t *testing.T) {
	require.NoError(t, ValidateExportPath(filepath.Join(t.TempDir(), "results.json")))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.NoError(t, ValidateExportPath(filepath.Join(cwd, "results.json")))
	assert.Error(t, ValidateExportPath("/etc/qpcr-results.json"))
}
