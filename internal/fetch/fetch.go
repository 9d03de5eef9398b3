// Package fetch resolves release descriptors and downloads release artifacts
// over HTTPS.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/lonhq/lonup/internal/checksum"
)

// maxChecksumBytes bounds the size of a downloaded checksum artifact.
const maxChecksumBytes = 4 << 10

var (
	// ErrInsecureSource indicates a release or checksum URL does not use HTTPS.
	ErrInsecureSource = errors.New("insecure source URL")

	// ErrNetwork indicates a connection, timeout, or HTTP-level failure.
	ErrNetwork = errors.New("network error")
)

// NetworkError describes a failed request. It wraps ErrNetwork so callers can
// classify with errors.Is.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

// Unwrap returns ErrNetwork so callers can use errors.Is.
func (e *NetworkError) Unwrap() error { return ErrNetwork }

// Release describes a published release. Immutable once resolved for a given
// update attempt.
type Release struct {
	// Version is the advertised version string, e.g. "1.1.0".
	Version string `json:"version"`
	// DownloadURL is the direct download location of the binary.
	DownloadURL string `json:"url"`
	// ChecksumURL points to the SHA-256 checksum artifact for the binary.
	ChecksumURL string `json:"sha256_url,omitempty"`
	// SHA256 is an inline expected digest, used when no checksum URL is set.
	SHA256 string `json:"sha256,omitempty"`
}

// Artifact is a downloaded candidate binary held at a temporary path.
// It is owned exclusively by the update attempt that created it.
type Artifact struct {
	Path   string // temporary file, never the install path
	Digest string // computed SHA-256, lowercase hex
	Size   int64
}

// Remove deletes the artifact's temporary file.
func (a *Artifact) Remove() error {
	return os.Remove(a.Path)
}

// Fetcher downloads release metadata and binaries.
type Fetcher struct {
	client        *http.Client
	allowInsecure bool
}

// Option configures a Fetcher during construction.
type Option func(*Fetcher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithInsecureTransport disables the HTTPS requirement. Test use only.
func WithInsecureTransport() Option {
	return func(f *Fetcher) { f.allowInsecure = true }
}

// New creates a Fetcher whose requests time out after the given duration.
func New(timeout time.Duration, opts ...Option) *Fetcher {
	f := &Fetcher{}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: timeout}
	}
	return f
}

// ResolveLatest fetches the release manifest at manifestURL and returns the
// release it describes. fallbackChecksumURL is used when the manifest names
// neither a checksum URL nor an inline digest.
func (f *Fetcher) ResolveLatest(ctx context.Context, manifestURL, fallbackChecksumURL string) (*Release, error) {
	if err := f.checkScheme(manifestURL); err != nil {
		return nil, err
	}

	body, err := f.get(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	var rel Release
	if err := json.NewDecoder(body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("failed to decode release manifest: %w", err)
	}

	if rel.Version == "" {
		return nil, fmt.Errorf("release manifest at %s has no version", manifestURL)
	}
	if rel.DownloadURL == "" {
		return nil, fmt.Errorf("release manifest at %s has no download URL", manifestURL)
	}

	if rel.ChecksumURL == "" && rel.SHA256 == "" {
		rel.ChecksumURL = fallbackChecksumURL
	}
	if rel.ChecksumURL == "" && rel.SHA256 == "" {
		return nil, fmt.Errorf("release manifest at %s names no checksum source", manifestURL)
	}

	if err := f.checkScheme(rel.DownloadURL); err != nil {
		return nil, err
	}
	if rel.ChecksumURL != "" {
		if err := f.checkScheme(rel.ChecksumURL); err != nil {
			return nil, err
		}
	}

	return &rel, nil
}

// ExpectedDigest returns the expected SHA-256 digest for the release binary,
// either from the inline digest or by downloading the checksum artifact.
func (f *Fetcher) ExpectedDigest(ctx context.Context, rel *Release) (string, error) {
	if rel.SHA256 != "" {
		return checksum.ParseExpected([]byte(rel.SHA256))
	}

	body, err := f.get(ctx, rel.ChecksumURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	content, err := io.ReadAll(io.LimitReader(body, maxChecksumBytes))
	if err != nil {
		return "", &NetworkError{URL: rel.ChecksumURL, Err: err}
	}

	return checksum.ParseExpected(content)
}

// Download fetches rawURL into a temporary file inside dir and returns the
// resulting artifact with its computed digest. A partially written file is
// removed on failure; the final install path is never written here.
func (f *Fetcher) Download(ctx context.Context, rawURL, dir string) (*Artifact, error) {
	if err := f.checkScheme(rawURL); err != nil {
		return nil, err
	}

	body, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	tmp, err := os.CreateTemp(dir, "lonup-download-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	size, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, &NetworkError{URL: rawURL, Err: err}
	}

	digest, err := checksum.Digest(tmp.Name())
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, err
	}

	return &Artifact{Path: tmp.Name(), Digest: digest, Size: size}, nil
}

// get issues a GET request and returns the response body. Connection
// failures and HTTP statuses >= 400 are reported as network errors.
func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %s: %w", rawURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		_ = resp.Body.Close()
		return nil, &NetworkError{URL: rawURL, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	return resp.Body, nil
}

// checkScheme rejects any URL whose transport is not encrypted.
func (f *Fetcher) checkScheme(rawURL string) error {
	if f.allowInsecure {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: %s", ErrInsecureSource, rawURL)
	}

	return nil
}
