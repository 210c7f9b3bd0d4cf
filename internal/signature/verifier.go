package signature

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"auction-settlement/internal/domain"
)

type Result int

const (
	Valid Result = iota
	Invalid
	KeyNotFound
	Malformed
)

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid_signature"
	case KeyNotFound:
		return "key_not_found"
	case Malformed:
		return "malformed_signature"
	default:
		return "unknown"
	}
}

type Verifier struct {
	registry domain.KeyRegistry
}

func NewVerifier(registry domain.KeyRegistry) *Verifier {
	return &Verifier{registry: registry}
}

// Verify checks a base64 signature over payload with the bidder's registered key.
// The returned error only adds detail to a non-Valid result and is never fatal.
func (v *Verifier) Verify(ctx context.Context, bidderID string, payload []byte, signature string) (Result, error) {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return Malformed, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) == 0 {
		return Malformed, fmt.Errorf("empty signature")
	}

	pub, err := v.registry.PublicKey(ctx, bidderID)
	if err != nil {
		return KeyNotFound, fmt.Errorf("resolve key for %q: %w", bidderID, err)
	}
	if len(sig) != pub.Size() {
		return Malformed, fmt.Errorf("signature is %d bytes, key size is %d", len(sig), pub.Size())
	}

	hashed := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hashed[:], sig); err != nil {
		return Invalid, err
	}
	return Valid, nil
}
