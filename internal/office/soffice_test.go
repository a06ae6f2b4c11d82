package office

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Lllllllleong/certgen/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSoffice writes a shell script that accepts soffice's arguments and runs
// body with $outdir and $in set.
func fakeSoffice(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("converter stub is a shell script")
	}
	path := filepath.Join(t.TempDir(), "soffice")
	script := `#!/bin/sh
outdir=""
while [ $# -gt 1 ]; do
  if [ "$1" = "--outdir" ]; then outdir="$2"; shift; fi
  shift
done
in="$1"
base=$(basename "$in")
stem="${base%.*}"
` + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const writesPDF = `printf '%%PDF-1.4 stub' > "$outdir/$stem.pdf"`

func inputDoc(t *testing.T) (string, string) {
	dir := t.TempDir()
	in := filepath.Join(dir, ".certgen-abc.docx")
	require.NoError(t, os.WriteFile(in, []byte("docx"), 0o644))
	return in, dir
}

func TestSofficeConvert(t *testing.T) {
	bin := fakeSoffice(t, writesPDF)
	in, dir := inputDoc(t)
	validated := ""
	conv := NewSoffice(bin, 5*time.Second, func(p string) error { validated = p; return nil })

	out, err := conv.Convert(context.Background(), in, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".certgen-abc.pdf"), out)
	assert.Equal(t, out, validated)
	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 stub", string(body))
}

func TestSofficeFailures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		timeout  time.Duration
		validate func(string) error
		check    func(t *testing.T, tf *services.ToolFailure)
	}{
		{
			name: "non-zero exit",
			body: `echo "source file could not be loaded" >&2; exit 3`,
			check: func(t *testing.T, tf *services.ToolFailure) {
				assert.Equal(t, 3, tf.ExitCode)
				assert.Contains(t, tf.Output, "could not be loaded")
			},
		},
		{
			name:    "timeout",
			body:    `exec sleep 10`,
			timeout: 200 * time.Millisecond,
			check: func(t *testing.T, tf *services.ToolFailure) {
				assert.True(t, tf.TimedOut)
			},
		},
		{
			name: "no output",
			body: `exit 0`,
			check: func(t *testing.T, tf *services.ToolFailure) {
				assert.True(t, tf.Malformed)
			},
		},
		{
			name:     "invalid output",
			body:     writesPDF,
			validate: func(string) error { return errors.New("no pages") },
			check: func(t *testing.T, tf *services.ToolFailure) {
				assert.True(t, tf.Malformed)
				assert.Contains(t, tf.Error(), "no pages")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := fakeSoffice(t, tt.body)
			in, dir := inputDoc(t)
			timeout := tt.timeout
			if timeout == 0 {
				timeout = 5 * time.Second
			}

			_, err := NewSoffice(bin, timeout, tt.validate).Convert(context.Background(), in, dir)
			var tf *services.ToolFailure
			require.True(t, errors.As(err, &tf), "got %v", err)
			assert.Equal(t, "soffice", tf.Tool)
			tt.check(t, tf)
		})
	}
}

func TestSofficeCancelled(t *testing.T) {
	bin := fakeSoffice(t, `exec sleep 10`)
	in, dir := inputDoc(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSoffice(bin, time.Minute, nil).Convert(ctx, in, dir)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLocateSoffice(t *testing.T) {
	_, err := LocateSoffice(filepath.Join(t.TempDir(), "missing-soffice"))
	require.ErrorIs(t, err, services.ErrMissingConverter)

	bin := fakeSoffice(t, writesPDF)
	got, err := LocateSoffice(bin)
	require.NoError(t, err)
	assert.Equal(t, bin, got)
}

func TestFileURL(t *testing.T) {
	assert.Equal(t, "file:///tmp/profile", fileURL("/tmp/profile"))
}
