package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(dir string) AssembleJob {
	return AssembleJob{
		Line:      1,
		Template:  filepath.Join(dir, "template.docx"),
		Fields:    map[string]string{"recipient_name": "A B"},
		Payload:   "Student name: A B\nIssued by: Acme",
		FinalPath: filepath.Join(dir, "int_cert_2024_0008_a_b.pdf"),
		Protect:   true,
	}
}

func TestAssemblePublishesProtectedArtifact(t *testing.T) {
	dir := t.TempDir()
	asm, enc := newFakeAssembler(&fakeMerger{}, &fakeConverter{}, &fakePages{})
	job := testJob(dir)

	secret, err := asm.Assemble(context.Background(), job)
	require.NoError(t, err)
	assert.Len(t, secret, 2*secretBytes)

	body, err := os.ReadFile(job.FinalPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "recipient_name=A B")
	assert.Contains(t, string(body), "QR:Student name: A B|Issued by: Acme")
	assert.True(t, strings.HasSuffix(string(body), "OWNER:"+secret))
	assert.Equal(t, []string{job.Payload}, enc.payloads)

	assert.Equal(t, []string{filepath.Base(job.FinalPath)}, listDir(dir))
}

func TestAssembleTwiceReplacesArtifact(t *testing.T) {
	dir := t.TempDir()
	asm, _ := newFakeAssembler(&fakeMerger{}, &fakeConverter{}, &fakePages{})
	job := testJob(dir)

	first, err := asm.Assemble(context.Background(), job)
	require.NoError(t, err)
	second, err := asm.Assemble(context.Background(), job)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{filepath.Base(job.FinalPath)}, listDir(dir))

	body, err := os.ReadFile(job.FinalPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "OWNER:"+second)
	assert.NotContains(t, string(body), first)
}

func TestAssembleUnprotected(t *testing.T) {
	dir := t.TempDir()
	asm, _ := newFakeAssembler(&fakeMerger{}, &fakeConverter{}, &fakePages{})
	job := testJob(dir)
	job.Protect = false

	secret, err := asm.Assemble(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, secret)

	body, err := os.ReadFile(job.FinalPath)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "OWNER:")
}

func TestAssembleFailureLeavesNothingBehind(t *testing.T) {
	tests := []struct {
		name  string
		asm   func() *Assembler
		stage string
	}{
		{"merge", func() *Assembler {
			a, _ := newFakeAssembler(&fakeMerger{fail: func(map[string]string) error { return errBoom }}, &fakeConverter{}, &fakePages{})
			return a
		}, "merge"},
		{"convert", func() *Assembler {
			a, _ := newFakeAssembler(&fakeMerger{}, &fakeConverter{err: &ToolFailure{Tool: "soffice", ExitCode: 1}}, &fakePages{})
			return a
		}, "convert"},
		{"protect", func() *Assembler {
			a, _ := newFakeAssembler(&fakeMerger{}, &fakeConverter{}, &fakePages{protectErr: errBoom})
			return a
		}, "protect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := tt.asm().Assemble(context.Background(), testJob(dir))
			require.Error(t, err)

			var recErr *RecordError
			require.True(t, errors.As(err, &recErr))
			assert.Equal(t, tt.stage, recErr.Stage)
			assert.Equal(t, 1, recErr.Line)
			assert.Empty(t, listDir(dir))
		})
	}
}

func TestAssembleConvertFailureKeepsToolFailure(t *testing.T) {
	dir := t.TempDir()
	asm, _ := newFakeAssembler(&fakeMerger{}, &fakeConverter{err: &ToolFailure{Tool: "soffice", TimedOut: true, Timeout: time.Second}}, &fakePages{})

	_, err := asm.Assemble(context.Background(), testJob(dir))
	var tf *ToolFailure
	require.True(t, errors.As(err, &tf))
	assert.True(t, tf.TimedOut)
}

func TestAssembleCancelledBeforePublish(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	asm, _ := newFakeAssembler(&fakeMerger{}, &fakeConverter{}, &fakePages{})
	asm.newSecret = func() (string, error) {
		cancel()
		return "deadbeef", nil
	}

	_, err := asm.Assemble(ctx, testJob(dir))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(dir))
}

func TestPublishOverwrites(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	dst := filepath.Join(dir, "dst.pdf")
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))

	require.NoError(t, Publish(src, dst))
	body, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(body))
	assert.NoFileExists(t, src)
}

func TestGenerateSecretIsFresh(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		s, err := GenerateSecret()
		require.NoError(t, err)
		assert.Len(t, s, 16)
		assert.False(t, seen[s])
		seen[s] = true
	}
}

func TestSweepStale(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, tempPrefix+"old.pdf")
	fresh := filepath.Join(dir, tempPrefix+"fresh.pdf")
	keep := filepath.Join(dir, "int_cert_2024_0001_a.pdf")
	for _, p := range []string{old, fresh, keep} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	now := time.Now()
	require.NoError(t, os.Chtimes(old, now.Add(-48*time.Hour), now.Add(-48*time.Hour)))
	require.NoError(t, os.Chtimes(keep, now.Add(-48*time.Hour), now.Add(-48*time.Hour)))

	n, err := SweepStale(dir, 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, keep)

	n, err = SweepStale(filepath.Join(dir, "missing"), time.Hour, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}
