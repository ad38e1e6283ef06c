package compress

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"arenasync/internal/syncerr"
)

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	random := make([]byte, 4096)
	rng.Read(random)

	inputs := map[string][]byte{
		"empty":        {},
		"single":       {0x42},
		"repetitive":   bytes.Repeat([]byte("entity-state-"), 500),
		"random":       random,
		"zeros":        make([]byte, 70000),
		"short random": random[:20],
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			compressed := Compress(input)
			out, err := Decompress(compressed, len(input))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(out, input) {
				t.Fatalf("round trip mismatch")
			}
		})
	}
}

func TestRepetitiveInputShrinks(t *testing.T) {
	input := bytes.Repeat([]byte{1, 2, 3, 4}, 1024)
	if got := len(Compress(input)); got >= len(input)/4 {
		t.Fatalf("expected strong compression, got %d of %d bytes", got, len(input))
	}
}

func TestLiteralBlockDecodes(t *testing.T) {
	for _, n := range []int{1, 14, 15, 16, 269, 270, 1000} {
		input := make([]byte, n)
		for i := range input {
			input[i] = byte(i * 7)
		}
		out, err := Decompress(literalBlock(input), n)
		if err != nil {
			t.Fatalf("n=%d: decompress: %v", n, err)
		}
		if !bytes.Equal(out, input) {
			t.Fatalf("n=%d: literal block mismatch", n)
		}
	}
}

func TestDecompressRejectsBadInput(t *testing.T) {
	payload := bytes.Repeat([]byte("snapshot"), 64)
	compressed := Compress(payload)

	cases := map[string]struct {
		src []byte
		n   int
	}{
		"negative length":   {compressed, -1},
		"oversized claim":   {compressed, MaxUncompressedLen + 1},
		"impossible ratio":  {[]byte{0x00}, 1 << 20},
		"empty with length": {nil, 10},
		"length too short":  {compressed, len(payload) - 1},
		"length too long":   {compressed, len(payload) + 1},
		"truncated block":   {compressed[:len(compressed)/2], len(payload)},
		"garbage":           {[]byte{0xFF, 0xFF, 0xFF, 0xFF}, 64},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decompress(tc.src, tc.n)
			if !errors.Is(err, syncerr.ErrDecompression) {
				t.Fatalf("expected decompression error, got %v", err)
			}
		})
	}
}
