package model

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Checksum returns the hex BLAKE2b-256 digest of payload
func Checksum(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// EncodeState serializes a state and returns the payload with its checksum
func EncodeState(st *ProgressionState) ([]byte, string, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, "", fmt.Errorf("encode state: %w", err)
	}
	return payload, Checksum(payload), nil
}

// DecodeState verifies a stored payload against its checksum and parses it.
// A mismatch or an unreadable payload is reported as ErrDataIntegrity.
func DecodeState(payload []byte, checksum string) (*ProgressionState, error) {
	if got := Checksum(payload); got != checksum {
		return nil, fmt.Errorf("%w: state checksum mismatch", ErrDataIntegrity)
	}
	var st ProgressionState
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("%w: state payload: %v", ErrDataIntegrity, err)
	}
	if st.UserID == "" {
		return nil, fmt.Errorf("%w: state without user id", ErrDataIntegrity)
	}
	return &st, nil
}
