package batch

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/adamwoolhether/downloader/client/download"
)

var hashes = map[string]func() hash.Hash{
	"sha256": sha256.New,
	"sha1":   sha1.New,
	"md5":    md5.New,
}

// checksum is a parsed "<algo>:<hex>" value.
type checksum struct {
	newHash  func() hash.Hash
	expected string
}

// parseChecksum accepts "<algo>:<hex>" or a bare sha256 hex digest.
// An empty string yields a nil checksum.
func parseChecksum(s string) (*checksum, error) {
	if s == "" {
		return nil, nil
	}

	algo, digest, found := strings.Cut(s, ":")
	if !found {
		algo, digest = "sha256", s
	}

	newHash, ok := hashes[strings.ToLower(algo)]
	if !ok {
		return nil, fmt.Errorf("unsupported algorithm %q", algo)
	}

	raw, err := hex.DecodeString(digest)
	if err != nil {
		return nil, errors.New("digest is not hex encoded")
	}
	if len(raw) != newHash().Size() {
		return nil, fmt.Errorf("%s digest must be %d bytes, got %d", algo, newHash().Size(), len(raw))
	}

	return &checksum{newHash: newHash, expected: strings.ToLower(digest)}, nil
}

// option returns a fresh download option; each attempt needs its own hash.
func (c *checksum) option() download.Option {
	return download.WithChecksum(c.newHash(), c.expected)
}
