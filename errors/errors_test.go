package errors_test

import (
	"io"
	"testing"

	"github.com/fdupoux/fsarchiver-go/errors"
)

func TestEKindAndMessage(t *testing.T) {
	err := errors.E(errors.Corrupt, "block checksum mismatch")
	if !errors.Is(errors.Corrupt, err) {
		t.Fatalf("expected Corrupt kind, got %v", err)
	}
	if got, want := err.Error(), "data corruption: block checksum mismatch"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestEWrapsCause(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := errors.E(errors.NotFound, "dictionary key", cause)
	if !errors.Is(errors.NotFound, err) {
		t.Fatalf("expected NotFound kind")
	}
	if errors.Recover(err).Err != cause {
		t.Fatalf("expected wrapped cause to be preserved")
	}
}

func TestEInheritsKindFromWrappedError(t *testing.T) {
	inner := errors.E(errors.WrongType, "not a header")
	outer := errors.E("claim failed", inner)
	if !errors.Is(errors.WrongType, outer) {
		t.Fatalf("expected outer error to inherit WrongType kind, got %v", errors.Recover(outer).Kind)
	}
}

func TestIsFalseForUnrelatedKind(t *testing.T) {
	err := errors.E(errors.Invalid, "bad option")
	if errors.Is(errors.Corrupt, err) {
		t.Fatalf("did not expect Corrupt kind to match")
	}
}

func TestRecoverWrapsPlainError(t *testing.T) {
	e := errors.Recover(io.EOF)
	if e.Kind != errors.Other {
		t.Fatalf("expected Other kind, got %v", e.Kind)
	}
	if e.Err != io.EOF {
		t.Fatalf("expected wrapped io.EOF")
	}
}

func TestRecoverNil(t *testing.T) {
	if errors.Recover(nil) != nil {
		t.Fatalf("expected nil")
	}
}
