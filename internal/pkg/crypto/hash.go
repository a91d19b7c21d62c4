// Package crypto provides hashing and token utilities for Bodleian Archive.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// HashReader computes the SHA-256 checksum and byte count of a stream while
// it is being read, so stored files are hashed and sized in one pass.
type HashReader struct {
	reader io.Reader
	sum    hash.Hash
	size   int64
}

// NewHashReader creates a new HashReader over r.
func NewHashReader(r io.Reader) *HashReader {
	return &HashReader{
		reader: r,
		sum:    sha256.New(),
	}
}

func (h *HashReader) Read(p []byte) (int, error) {
	n, err := h.reader.Read(p)
	if n > 0 {
		h.sum.Write(p[:n])
		h.size += int64(n)
	}
	return n, err
}

// SHA256 returns the hex-encoded checksum of everything read so far.
// Call it after the stream is drained.
func (h *HashReader) SHA256() string {
	return hex.EncodeToString(h.sum.Sum(nil))
}

// Size returns the number of bytes read so far.
func (h *HashReader) Size() int64 {
	return h.size
}
