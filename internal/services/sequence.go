package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SequenceState is the durable position of the numbering series.
type SequenceState struct {
	ActiveYear  int
	LastCounter int
}

// CertificateNumber identifies one certificate as YYYY/NNNN.
type CertificateNumber struct {
	Year    int
	Counter int
}

func (n CertificateNumber) String() string {
	return fmt.Sprintf("%04d/%04d", n.Year, n.Counter)
}

// Slug is the file-name-safe form, YYYY_NNNN.
func (n CertificateNumber) Slug() string {
	return fmt.Sprintf("%04d_%04d", n.Year, n.Counter)
}

// Less orders numbers by (year, counter).
func (n CertificateNumber) Less(o CertificateNumber) bool {
	if n.Year != o.Year {
		return n.Year < o.Year
	}
	return n.Counter < o.Counter
}

// ParseCertificateNumber accepts both "2024/0008" and "2024_0008".
func ParseCertificateNumber(s string) (CertificateNumber, error) {
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '_' })
	if len(parts) != 2 {
		return CertificateNumber{}, fmt.Errorf("invalid certificate number %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year <= 0 {
		return CertificateNumber{}, fmt.Errorf("invalid certificate year in %q", s)
	}
	counter, err := strconv.Atoi(parts[1])
	if err != nil || counter <= 0 {
		return CertificateNumber{}, fmt.Errorf("invalid certificate counter in %q", s)
	}
	return CertificateNumber{Year: year, Counter: counter}, nil
}

// NextNumber is the allocation transition. A year later than the active one
// starts a fresh series at 1; anything else continues the current series.
func NextNumber(state SequenceState, now time.Time) (CertificateNumber, SequenceState) {
	if y := now.Year(); y > state.ActiveYear {
		next := SequenceState{ActiveYear: y, LastCounter: 1}
		return CertificateNumber{Year: y, Counter: 1}, next
	}
	next := SequenceState{ActiveYear: state.ActiveYear, LastCounter: state.LastCounter + 1}
	return CertificateNumber{Year: next.ActiveYear, Counter: next.LastCounter}, next
}

// Allocator threads SequenceState through consecutive allocations in one
// batch. It never touches durable storage.
type Allocator struct {
	state SequenceState
	now   func() time.Time
}

func NewAllocator(start SequenceState, now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{state: start, now: now}
}

// Allocate returns the next number and advances the in-memory state.
func (a *Allocator) Allocate() CertificateNumber {
	n, next := NextNumber(a.state, a.now())
	a.state = next
	return n
}

// State is the position after the last allocation.
func (a *Allocator) State() SequenceState { return a.state }

// SequenceStore persists SequenceState between runs.
type SequenceStore interface {
	// Load returns ErrNoSequence when nothing has been committed yet.
	Load(ctx context.Context) (SequenceState, error)
	// Commit replaces the durable state atomically.
	Commit(ctx context.Context, state SequenceState) error
}
