package core

import (
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// NewDocumentID returns a random UUIDv4. UUIDs never contain '_' so they
// always pass ValidateDocumentID.
func NewDocumentID() string {
	return uuid.NewString()
}

// ContentHash returns a deterministic 64-bit BLAKE2b digest of text,
// hex encoded. Identical text always produces the identical hash.
func ContentHash(text string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
