package syncerr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Newf(CodeDeltaMismatch, "apply delta: fingerprint %x != %x", 1, 2)
	if !errors.Is(err, ErrDeltaMismatch) {
		t.Fatalf("expected delta mismatch to match sentinel")
	}
	if errors.Is(err, ErrCorruptData) {
		t.Fatalf("did not expect delta mismatch to match corrupt data")
	}

	wrapped := fmt.Errorf("session: %w", err)
	if !errors.Is(wrapped, ErrDeltaMismatch) {
		t.Fatalf("expected wrapped error to match sentinel")
	}
	if got := CodeOf(wrapped); got != CodeDeltaMismatch {
		t.Fatalf("unexpected code %q", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(CodeDecompression, "decompress payload", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected cause to be reachable")
	}
	if got := err.Error(); got != "decompress payload: unexpected EOF" {
		t.Fatalf("unexpected message %q", got)
	}
	if CodeOf(io.EOF) != "" {
		t.Fatalf("expected empty code for foreign errors")
	}
}
