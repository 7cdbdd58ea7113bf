package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Hasher computes and verifies SHA-256 content fingerprints. The
// digest is the tamper-evidence anchor for every content record: it is
// computed once at ingestion and compared against the ledger's
// recorded hash on every integrity check.
type Hasher struct{}

// New creates a new content hasher
func New() *Hasher {
	return &Hasher{}
}

// VerifyResult is the outcome of comparing streamed content against an
// expected digest.
type VerifyResult struct {
	Match      bool   `json:"match"`
	ActualHash string `json:"actual_hash"`
	Size       int64  `json:"size"`
}

// Digest streams r through SHA-256 and returns the hex-encoded digest
// and the number of bytes consumed. The input is never buffered whole.
func (h *Hasher) Digest(r io.Reader) (string, int64, error) {
	sum := sha256.New()
	n, err := io.Copy(sum, r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash content stream: %w", err)
	}
	return hex.EncodeToString(sum.Sum(nil)), n, nil
}

// DigestBytes hashes an in-memory byte slice
func (h *Hasher) DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest of r and compares it against
// expectedHash. Comparison is case-insensitive on the hex encoding.
func (h *Hasher) Verify(r io.Reader, expectedHash string) (*VerifyResult, error) {
	actual, size, err := h.Digest(r)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		Match:      strings.EqualFold(actual, expectedHash),
		ActualHash: actual,
		Size:       size,
	}, nil
}
