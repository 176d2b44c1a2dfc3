// Package ledger anchors registry events to an external ledger.
//
// The anchor reference is an audit hint, never a source of truth for
// ownership or state: registries commit their own store first and treat
// anchor failure as a reported degradation, not an error.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// EventKind classifies the logical event being anchored.
type EventKind string

const (
	KindMortgageRegistration EventKind = "mortgage_registration"
	KindMortgageDischarge    EventKind = "mortgage_discharge"
	KindDocumentUpload       EventKind = "document_upload"
	KindDocumentVerification EventKind = "document_verification"
	KindTitleIssuance        EventKind = "title_issuance"
)

// Anchor is an opaque reference to a ledger entry.
type Anchor struct {
	// Ref is format-compatible with a chain transaction hash (64 hex chars).
	Ref string
	// Position is a monotonic ordering hint, not a consensus height.
	Position int64
}

// Client produces anchor references for logical events. A production
// implementation would submit to a real distributed ledger; registries are
// written against this interface so the swap changes no registry logic.
type Client interface {
	Anchor(ctx context.Context, kind EventKind, payload string) (Anchor, error)
}

// Sequence supplies the monotonic position for simulated anchors.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// Simulated generates random hash-shaped references with positions from a
// Sequence. It never fails on the hash side; only the sequence can error.
type Simulated struct {
	seq Sequence
}

func NewSimulated(seq Sequence) *Simulated {
	return &Simulated{seq: seq}
}

func (s *Simulated) Anchor(ctx context.Context, kind EventKind, payload string) (Anchor, error) {
	if err := ctx.Err(); err != nil {
		return Anchor{}, err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Anchor{}, fmt.Errorf("generate anchor ref: %w", err)
	}

	pos, err := s.seq.Next(ctx)
	if err != nil {
		return Anchor{}, fmt.Errorf("anchor sequence: %w", err)
	}

	return Anchor{
		Ref:      hex.EncodeToString(buf),
		Position: pos,
	}, nil
}
