// Package checksum computes and compares SHA-256 digests of files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrMismatch indicates the computed digest does not match the expected one.
	ErrMismatch = errors.New("checksum mismatch")

	// ErrMalformedDigest indicates the expected-digest input did not contain
	// a valid 64-character hex SHA-256 digest.
	ErrMalformedDigest = errors.New("malformed sha256 digest")
)

// MismatchError describes a checksum verification failure.
// It wraps ErrMismatch so callers can classify with errors.Is.
type MismatchError struct {
	Path     string
	Expected string
	Got      string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Got)
}

// Unwrap returns ErrMismatch so callers can use errors.Is.
func (e *MismatchError) Unwrap() error { return ErrMismatch }

// Digest computes the SHA-256 digest of the file at path and returns it as
// lowercase hex. The file is streamed through the hash, so memory use is
// bounded regardless of file size.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ParseExpected extracts a SHA-256 digest from the contents of a checksum
// artifact. It accepts either a bare hex digest or the sha256sum output
// format ("<digest>  <filename>"), taking the first whitespace-separated
// token. Surrounding whitespace and newlines are ignored and hex case is
// normalized to lowercase.
func ParseExpected(content []byte) (string, error) {
	fields := strings.Fields(string(content))
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: checksum file is empty", ErrMalformedDigest)
	}

	digest := strings.ToLower(fields[0])
	if !isHexDigest(digest) {
		return "", fmt.Errorf("%w: %q", ErrMalformedDigest, fields[0])
	}

	return digest, nil
}

// Verify compares the digest of the file at path against expected.
// Returns a *MismatchError wrapping ErrMismatch when the digests differ.
// Comparison is case-insensitive.
func Verify(path, expected string) error {
	got, err := Digest(path)
	if err != nil {
		return err
	}

	if !strings.EqualFold(got, expected) {
		return &MismatchError{
			Path:     path,
			Expected: strings.ToLower(expected),
			Got:      got,
		}
	}

	return nil
}

// isHexDigest reports whether s is a 64-character hex string.
func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
