// Package crypto provides the AES-CTR cipher used for at-rest encryption
// of stored versions. Each sealed payload starts with a random IV.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// AESCTR implements the engine's Cipher interface with AES in CTR mode.
type AESCTR struct {
	key []byte
}

// NewAESCTR creates a cipher from a raw key. The key must be 16, 24 or 32
// bytes long.
func NewAESCTR(key []byte) (*AESCTR, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("invalid key length %d: want 16, 24 or 32 bytes", len(key))
	}
	// Reject the key up front rather than on first use.
	if _, err := aes.NewCipher(key); err != nil {
		return nil, err
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &AESCTR{key: k}, nil
}

// NewAESCTRFromHex creates a cipher from a hex-encoded key, the form keys
// take in configuration.
func NewAESCTRFromHex(hexKey string) (*AESCTR, error) {
	if hexKey == "" {
		return nil, errors.New("encryption key is empty")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("malformed hex encryption key: %w", err)
	}
	return NewAESCTR(key)
}

// Encrypt writes a fresh IV to dst and returns a writer that encrypts
// everything written to it. Close flushes nothing; CTR mode is stateless
// per block and dst stays open.
func (c *AESCTR) Encrypt(dst io.Writer) (io.WriteCloser, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	if _, err := dst.Write(iv); err != nil {
		return nil, fmt.Errorf("failed to write IV: %w", err)
	}
	return &streamWriter{stream: cipher.NewCTR(block, iv), w: dst}, nil
}

// Decrypt reads the IV from src and returns a reader that decrypts the
// remainder of the stream.
func (c *AESCTR) Decrypt(src io.Reader) (io.ReadCloser, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(src, iv); err != nil {
		return nil, fmt.Errorf("failed to read IV: %w", err)
	}
	return &streamReader{stream: cipher.NewCTR(block, iv), r: src}, nil
}

type streamWriter struct {
	stream cipher.Stream
	w      io.Writer
	buf    []byte
}

func (s *streamWriter) Write(p []byte) (int, error) {
	if len(s.buf) < len(p) {
		s.buf = make([]byte, len(p))
	}
	s.stream.XORKeyStream(s.buf[:len(p)], p)
	n, err := s.w.Write(s.buf[:len(p)])
	if n != len(p) && err == nil {
		err = io.ErrShortWrite
	}
	return n, err
}

func (s *streamWriter) Close() error { return nil }

type streamReader struct {
	stream cipher.Stream
	r      io.Reader
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.stream.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

func (s *streamReader) Close() error { return nil }
