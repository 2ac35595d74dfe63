package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// domainRuleSet separates rule-set fingerprints from other hashes over
// canonical JSON.
const domainRuleSet = "causal/ruleset/v1"

// Fingerprint identifies the content of rs: SHA-256 over the domain, a null
// byte and the RFC 8785 encoding of rs. Formatting, comments and key order in
// the source file do not change it; any change to a law does.
func Fingerprint(rs *RuleSet) (string, error) {
	raw, err := json.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(domainRuleSet))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
