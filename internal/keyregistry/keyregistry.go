// Package keyregistry resolves bidder ids to RSA public keys.
package keyregistry

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"auction-settlement/internal/domain"
)

// MinKeyBits is the smallest modulus accepted for a bidder key.
const MinKeyBits = 2048

var (
	ErrKeyNotFound     = errors.New("bidder key not found")
	ErrInvalidBidderID = errors.New("invalid bidder id")
)

// ValidBidderID reports whether id can safely be used as a registry key.
// Ids that could escape a key directory are refused, as is the id announced
// for auctions that close without a winner.
func ValidBidderID(id string) bool {
	if id == "" || id == "." || id == domain.NoWinner || strings.Contains(id, "..") {
		return false
	}
	return !strings.ContainsAny(id, `/\`+"\x00")
}

// ParsePublicKeyPEM accepts a PKIX "PUBLIC KEY" or PKCS#1 "RSA PUBLIC KEY" block.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	var pub *rsa.PublicKey
	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#1 public key: %w", err)
		}
		pub = key
	default:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKIX public key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA public key")
		}
		pub = rsaKey
	}

	if pub.N.BitLen() < MinKeyBits {
		return nil, fmt.Errorf("key is %d bits, need at least %d", pub.N.BitLen(), MinKeyBits)
	}
	return pub, nil
}

// EncodePublicKeyPEM writes pub as a PKIX "PUBLIC KEY" block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
