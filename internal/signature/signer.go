package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sign produces the base64 signature a bidder attaches to a bid.
// PKCS#1 v1.5 is deterministic, so the same bid always yields the same signature.
func Sign(key *rsa.PrivateKey, auctionID, bidderID string, amount decimal.Decimal) (string, error) {
	hashed := sha256.Sum256(Canonical(auctionID, bidderID, amount))

	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	if err != nil {
		return "", fmt.Errorf("sign bid: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
