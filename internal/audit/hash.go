package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// domainReaction separates reaction value hashes from any other use of the
// same canonical bytes. Format: SHA256(domain + 0x00 + canonical JSON).
const domainReaction = "causal/reaction/v1"

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Canonical returns the RFC 8785 canonical JSON encoding of v, so values that
// are equal as JSON (key order, number spelling) encode identically.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return canonical, nil
}

// ValueHash returns the domain-separated hash of v's canonical JSON.
func ValueHash(v any) (string, error) {
	canonical, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return hashWithDomain(domainReaction, canonical), nil
}
