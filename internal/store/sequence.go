// Package store holds the local durable stores: the sequence state file, the
// SQLite issuance registry and the blob mirror.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/certgen/internal/services"
	toml "github.com/pelletier/go-toml"
)

const (
	keyYear    = "certificate.year"
	keyCounter = "certificate.cert_num"
)

// ErrStateExists is returned by Seed when a state file is already present.
var ErrStateExists = errors.New("sequence state file already exists")

// SequenceFile persists the sequence state as TOML:
//
//	[certificate]
//	year = 2024
//	cert_num = 7
//
// Keys it does not own are kept on commit.
type SequenceFile struct {
	path string
}

func NewSequenceFile(path string) *SequenceFile {
	return &SequenceFile{path: path}
}

func (s *SequenceFile) Path() string { return s.path }

// Load reads the committed state. A missing file is services.ErrNoSequence.
func (s *SequenceFile) Load(ctx context.Context) (services.SequenceState, error) {
	tree, err := s.load()
	if err != nil {
		return services.SequenceState{}, err
	}
	year, err := intKey(tree, keyYear)
	if err != nil {
		return services.SequenceState{}, err
	}
	counter, err := intKey(tree, keyCounter)
	if err != nil {
		return services.SequenceState{}, err
	}
	if year < 1 || counter < 0 {
		return services.SequenceState{}, fmt.Errorf("invalid sequence state in %s: year=%d cert_num=%d", s.path, year, counter)
	}
	return services.SequenceState{ActiveYear: int(year), LastCounter: int(counter)}, nil
}

// Commit replaces the file with the new state. The write goes through a temp
// file in the same directory, is synced, then renamed over the old file, so a
// crash leaves either the old or the new state.
func (s *SequenceFile) Commit(ctx context.Context, state services.SequenceState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tree, err := s.load()
	if errors.Is(err, services.ErrNoSequence) {
		tree, err = toml.TreeFromMap(map[string]interface{}{})
	}
	if err != nil {
		return err
	}
	tree.Set(keyYear, int64(state.ActiveYear))
	tree.Set(keyCounter, int64(state.LastCounter))
	return s.write(tree)
}

// Seed creates the state file so the next allocation is firstNumber in year.
// An existing file is only replaced when force is set.
func (s *SequenceFile) Seed(ctx context.Context, year, firstNumber int, force bool) error {
	if year < 1 || firstNumber < 1 {
		return fmt.Errorf("year and number must be positive, got %d and %d", year, firstNumber)
	}
	if !force {
		if _, err := os.Stat(s.path); err == nil {
			return fmt.Errorf("%w: %s", ErrStateExists, s.path)
		}
	}
	return s.Commit(ctx, services.SequenceState{ActiveYear: year, LastCounter: firstNumber - 1})
}

func (s *SequenceFile) load() (*toml.Tree, error) {
	tree, err := toml.LoadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.ErrNoSequence
		}
		return nil, fmt.Errorf("failed to parse sequence file %s: %w", s.path, err)
	}
	return tree, nil
}

func (s *SequenceFile) write(tree *toml.Tree) error {
	body, err := tree.ToTomlString()
	if err != nil {
		return fmt.Errorf("failed to encode sequence state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".certgen-state-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace sequence file: %w", err)
	}
	return nil
}

func intKey(tree *toml.Tree, key string) (int64, error) {
	switch v := tree.Get(key).(type) {
	case int64:
		return v, nil
	case nil:
		return 0, fmt.Errorf("sequence file is missing %s", key)
	default:
		return 0, fmt.Errorf("sequence file key %s must be an integer, got %T", key, v)
	}
}
