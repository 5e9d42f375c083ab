package download

import (
	"encoding/hex"
	"fmt"
	"hash"
)

// checksumVerifier enables checksum validation of the downloaded file.
type checksumVerifier struct {
	hash     hash.Hash
	expected string
}

func (v *checksumVerifier) Write(p []byte) (int, error) {
	return v.hash.Write(p)
}

// Sum returns the hex digest of everything written so far.
func (v *checksumVerifier) Sum() string {
	if v == nil {
		return ""
	}

	return hex.EncodeToString(v.hash.Sum(nil))
}

func (v *checksumVerifier) Verify() error {
	if v == nil {
		return nil
	}

	actual := v.Sum()
	if actual != v.expected {
		return &Error{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("expected %s, got %s", v.expected, actual),
		}
	}

	return nil
}
