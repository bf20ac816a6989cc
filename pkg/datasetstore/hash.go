package datasetstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// hashChunkSize is the buffer size used when streaming a payload through
// the hasher. Files are never loaded whole into memory just to hash them.
const hashChunkSize = 64 * 1024

// hashFile computes the SHA-256 hex digest and byte size of the file at
// path, streaming in fixed-size chunks.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open payload: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	size, err := io.CopyBuffer(h, f, buf)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash payload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// streamHasher accumulates a SHA-256 digest while bytes pass through a
// MultiWriter, used for integrity checking on retrieval.
type streamHasher struct {
	h hash.Hash
}

func newStreamHasher() *streamHasher {
	return &streamHasher{h: sha256.New()}
}

func (s *streamHasher) Write(p []byte) (int, error) {
	return s.h.Write(p)
}

func (s *streamHasher) sum() string {
	return hex.EncodeToString(s.h.Sum(nil))
}
