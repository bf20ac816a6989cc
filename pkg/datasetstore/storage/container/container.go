// Package container seals payload files into their on-disk representation:
// an optional DEFLATE-based gzip or zip wrapper, followed by an optional
// cipher layer. Both storage backends share this logic, so every artifact's
// framing is recoverable from its filename suffixes alone.
package container

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Container suffixes, outermost last. A gzip-compressed encrypted artifact
// ends in ".gz.enc".
const (
	SuffixGzip      = ".gz"
	SuffixZip       = ".zip"
	SuffixEncrypted = ".enc"
)

// Compression method names accepted by Seal.
const (
	MethodGzip = "gzip"
	MethodZip  = "zip"
)

// Cipher is the confidentiality hook. It matches the engine's cipher
// interface; a nil cipher disables the encryption layer entirely.
type Cipher interface {
	Encrypt(dst io.Writer) (io.WriteCloser, error)
	Decrypt(src io.Reader) (io.ReadCloser, error)
}

// Result reports the sealed artifact.
type Result struct {
	Path       string
	Size       int64
	Compressed bool
	Encrypted  bool
}

// Options controls sealing.
type Options struct {
	Compress bool
	Method   string // MethodGzip or MethodZip; empty defaults to gzip
	Encrypt  bool
	Cipher   Cipher
}

// Seal writes the file at srcPath to destPath, appending container suffixes
// for each applied layer. Encryption is applied only when a cipher is
// present; a requested-but-absent cipher yields Encrypted=false and the
// caller decides how loudly to complain.
func Seal(srcPath, destPath string, opts Options) (*Result, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload: %w", err)
	}
	defer src.Close()

	finalPath := destPath
	if opts.Compress {
		switch opts.Method {
		case MethodZip:
			finalPath += SuffixZip
		default:
			finalPath += SuffixGzip
		}
	}
	encrypt := opts.Encrypt && opts.Cipher != nil
	if encrypt {
		finalPath += SuffixEncrypted
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	out, err := os.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", finalPath, err)
	}

	err = seal(src, out, filepath.Base(destPath), opts, encrypt)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(finalPath)
		return nil, err
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, err
	}
	return &Result{
		Path:       finalPath,
		Size:       info.Size(),
		Compressed: opts.Compress,
		Encrypted:  encrypt,
	}, nil
}

func seal(src io.Reader, out io.Writer, entryName string, opts Options, encrypt bool) error {
	var dst io.Writer = out
	var closers []io.Closer

	if encrypt {
		ew, err := opts.Cipher.Encrypt(dst)
		if err != nil {
			return fmt.Errorf("cipher failed: %w", err)
		}
		dst = ew
		closers = append(closers, ew)
	}

	if opts.Compress {
		switch opts.Method {
		case MethodZip:
			zw := zip.NewWriter(dst)
			entry, err := zw.Create(entryName)
			if err != nil {
				return fmt.Errorf("failed to create zip entry: %w", err)
			}
			if _, err := io.Copy(entry, src); err != nil {
				return fmt.Errorf("failed to write zip entry: %w", err)
			}
			if err := zw.Close(); err != nil {
				return fmt.Errorf("failed to finish zip container: %w", err)
			}
			return closeAll(closers)
		default:
			gw := gzip.NewWriter(dst)
			if _, err := io.Copy(gw, src); err != nil {
				return fmt.Errorf("failed to compress payload: %w", err)
			}
			if err := gw.Close(); err != nil {
				return fmt.Errorf("failed to finish gzip container: %w", err)
			}
			return closeAll(closers)
		}
	}

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy payload: %w", err)
	}
	return closeAll(closers)
}

func closeAll(closers []io.Closer) error {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			return err
		}
	}
	return nil
}

// Open streams the sealed artifact at path into dst, reversing each layer
// indicated by the filename suffixes.
func Open(path string, dst io.Writer, cipher Cipher) error {
	name := path

	if strings.HasSuffix(name, SuffixEncrypted) {
		if cipher == nil {
			return fmt.Errorf("artifact %s is encrypted but no cipher is configured", filepath.Base(path))
		}
		name = strings.TrimSuffix(name, SuffixEncrypted)
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open artifact: %w", err)
		}
		defer f.Close()
		dec, err := cipher.Decrypt(f)
		if err != nil {
			return fmt.Errorf("cipher failed: %w", err)
		}
		defer dec.Close()

		// Zip needs random access; buffer the decrypted stream.
		if strings.HasSuffix(name, SuffixZip) {
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, dec); err != nil {
				return fmt.Errorf("failed to decrypt artifact: %w", err)
			}
			return copyZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()), dst)
		}
		return unwrap(name, dec, dst)
	}

	if strings.HasSuffix(name, SuffixZip) {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open artifact: %w", err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		return copyZip(f, info.Size(), dst)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()
	return unwrap(name, f, dst)
}

func unwrap(name string, src io.Reader, dst io.Writer) error {
	if strings.HasSuffix(name, SuffixGzip) {
		gr, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("failed to read gzip container: %w", err)
		}
		defer gr.Close()
		if _, err := io.Copy(dst, gr); err != nil {
			return fmt.Errorf("failed to decompress payload: %w", err)
		}
		return nil
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy payload: %w", err)
	}
	return nil
}

func copyZip(r io.ReaderAt, size int64, dst io.Writer) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("failed to read zip container: %w", err)
	}
	if len(zr.File) == 0 {
		return fmt.Errorf("zip container is empty")
	}
	entry, err := zr.File[0].Open()
	if err != nil {
		return fmt.Errorf("failed to open zip entry: %w", err)
	}
	defer entry.Close()
	if _, err := io.Copy(dst, entry); err != nil {
		return fmt.Errorf("failed to extract zip entry: %w", err)
	}
	return nil
}

// Strip removes all container suffixes from a filename, recovering the
// payload's original name.
func Strip(name string) string {
	for {
		switch {
		case strings.HasSuffix(name, SuffixEncrypted):
			name = strings.TrimSuffix(name, SuffixEncrypted)
		case strings.HasSuffix(name, SuffixGzip):
			name = strings.TrimSuffix(name, SuffixGzip)
		case strings.HasSuffix(name, SuffixZip):
			name = strings.TrimSuffix(name, SuffixZip)
		default:
			return name
		}
	}
}
