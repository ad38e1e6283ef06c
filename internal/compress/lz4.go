// Package compress wraps payloads in raw LZ4 blocks. The uncompressed size is
// not stored in the block; callers carry it alongside (the frame header does).
package compress

import (
	"github.com/pierrec/lz4/v4"

	"arenasync/internal/syncerr"
)

// MaxUncompressedLen bounds the allocation a peer can request through a
// frame header.
const MaxUncompressedLen = 16 << 20

// maxRatio is the best expansion an LZ4 block can achieve per input byte.
const maxRatio = 255

// Compress returns src as an LZ4 block. Empty input yields empty output.
func Compress(src []byte) []byte {
	if len(src) == 0 {
		return []byte{}
	}
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil || n == 0 {
		return literalBlock(src)
	}
	return dst[:n]
}

// literalBlock encodes src as a single literal run, which is always a valid
// block. Used when the compressor declines incompressible input.
func literalBlock(src []byte) []byte {
	n := len(src)
	out := make([]byte, 0, n+n/255+2)
	if n < 15 {
		out = append(out, byte(n<<4))
	} else {
		out = append(out, 0xF0)
		rest := n - 15
		for rest >= 255 {
			out = append(out, 255)
			rest -= 255
		}
		out = append(out, byte(rest))
	}
	return append(out, src...)
}

// Decompress inflates an LZ4 block that must expand to exactly expectedLen
// bytes. Lengths that are negative, above MaxUncompressedLen, or impossible
// for the size of src are rejected before any allocation.
func Decompress(src []byte, expectedLen int) ([]byte, error) {
	if expectedLen < 0 || expectedLen > MaxUncompressedLen {
		return nil, syncerr.Newf(syncerr.CodeDecompression, "declared length %d out of range", expectedLen)
	}
	if len(src) == 0 {
		if expectedLen != 0 {
			return nil, syncerr.Newf(syncerr.CodeDecompression, "empty block cannot expand to %d bytes", expectedLen)
		}
		return []byte{}, nil
	}
	if expectedLen > len(src)*maxRatio+16 {
		return nil, syncerr.Newf(syncerr.CodeDecompression,
			"declared length %d impossible for %d compressed bytes", expectedLen, len(src))
	}

	dst := make([]byte, expectedLen)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.CodeDecompression, "lz4 block", err)
	}
	if n != expectedLen {
		return nil, syncerr.Newf(syncerr.CodeDecompression, "decoded %d bytes, header declared %d", n, expectedLen)
	}
	return dst, nil
}
