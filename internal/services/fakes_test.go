package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// fakeMerger writes the merged fields as "key=value" lines.
type fakeMerger struct {
	fields []string
	fail   func(fields map[string]string) error
}

func (m *fakeMerger) Fields(string) ([]string, error) { return m.fields, nil }

func (m *fakeMerger) Merge(_ context.Context, _ string, fields map[string]string, outPath string) error {
	if m.fail != nil {
		if err := m.fail(fields); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, fields[k])
	}
	return os.WriteFile(outPath, []byte(b.String()), 0o644)
}

// fakeConverter copies the merged document to <stem>.pdf.
type fakeConverter struct {
	err error
}

func (c *fakeConverter) Convert(_ context.Context, inPath, outDir string) (string, error) {
	out := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath))+".pdf")
	if c.err != nil {
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		return out, c.err
	}
	body, err := os.ReadFile(inPath)
	if err != nil {
		return "", err
	}
	return out, os.WriteFile(out, append([]byte("%PDF\n"), body...), 0o644)
}

type fakeEncoder struct {
	mu       sync.Mutex
	payloads []string
}

func (e *fakeEncoder) Encode(payload string, _ int, outPath string) error {
	e.mu.Lock()
	e.payloads = append(e.payloads, payload)
	e.mu.Unlock()
	return os.WriteFile(outPath, []byte(payload), 0o644)
}

// fakePages records stamps and passwords by appending to the target file.
type fakePages struct {
	protectErr error
}

func (p *fakePages) ImagePage(imgPath, outPath string, _ float64) error {
	body, err := os.ReadFile(imgPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, body, 0o644)
}

func (p *fakePages) Overlay(target, stampPath string, _, _, _ float64) error {
	stamp, err := os.ReadFile(stampPath)
	if err != nil {
		return err
	}
	return appendFile(target, "\nQR:"+strings.ReplaceAll(string(stamp), "\n", "|"))
}

func (p *fakePages) Protect(path, owner string) error {
	if p.protectErr != nil {
		return p.protectErr
	}
	return appendFile(path, "\nOWNER:"+owner)
}

func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

func newFakeAssembler(m *fakeMerger, c *fakeConverter, p *fakePages) (*Assembler, *fakeEncoder) {
	enc := &fakeEncoder{}
	return NewAssembler(m, c, enc, p, Region{}, 0), enc
}

// memSequence is an in-memory SequenceStore.
type memSequence struct {
	state   *SequenceState
	commits int
	err     error
}

func (s *memSequence) Load(context.Context) (SequenceState, error) {
	if s.state == nil {
		return SequenceState{}, ErrNoSequence
	}
	return *s.state, nil
}

func (s *memSequence) Commit(_ context.Context, st SequenceState) error {
	if s.err != nil {
		return s.err
	}
	s.state = &st
	s.commits++
	return nil
}

var errBoom = errors.New("boom")

// listDir returns the file names in dir, sorted.
func listDir(dir string) []string {
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
