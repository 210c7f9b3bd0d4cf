package signature

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"testing"

	"auction-settlement/internal/keyregistry"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

type fixture struct {
	keys     map[string]*rsa.PrivateKey
	verifier *Verifier
}

func newFixture(t *testing.T, bidders ...string) *fixture {
	t.Helper()
	registry := keyregistry.NewMemoryRegistry()
	f := &fixture{keys: make(map[string]*rsa.PrivateKey), verifier: NewVerifier(registry)}
	for _, id := range bidders {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		assert.NoError(t, err)
		registry.Put(id, &key.PublicKey)
		f.keys[id] = key
	}
	return f
}

func (f *fixture) sign(t *testing.T, bidderID, auctionID string, amount decimal.Decimal) string {
	t.Helper()
	sig, err := Sign(f.keys[bidderID], auctionID, bidderID, amount)
	assert.NoError(t, err)
	return sig
}

func TestCanonical(t *testing.T) {
	got := Canonical("A1", "u1", decimal.NewFromInt(50))
	check.Equal(t, `{"amount":50,"auctionId":"A1","bidderId":"u1"}`, string(got))

	got = Canonical("A1", "u1", decimal.RequireFromString("50.50"))
	check.Equal(t, `{"amount":50.5,"auctionId":"A1","bidderId":"u1"}`, string(got))

	got = Canonical(`lot "7"`, "<u&1>", decimal.RequireFromString("0.010"))
	check.Equal(t, `{"amount":0.01,"auctionId":"lot \"7\"","bidderId":"<u&1>"}`, string(got))

	// Equal amounts in different textual forms sign the same bytes.
	check.Equal(t,
		string(Canonical("A1", "u1", decimal.RequireFromString("70.000"))),
		string(Canonical("A1", "u1", decimal.NewFromInt(70))))
}

func TestVerifyValid(t *testing.T) {
	f := newFixture(t, "u1")
	amount := decimal.NewFromInt(50)
	sig := f.sign(t, "u1", "A1", amount)

	result, err := f.verifier.Verify(context.Background(), "u1", Canonical("A1", "u1", amount), sig)
	check.NoError(t, err)
	check.Equal(t, Valid, result)

	// Signing is deterministic.
	check.Equal(t, sig, f.sign(t, "u1", "A1", amount))
}

func TestVerifyTamperedFields(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	sig := f.sign(t, "u1", "A1", decimal.NewFromInt(50))
	ctx := context.Background()

	cases := []struct {
		name    string
		bidder  string
		payload []byte
	}{
		{"amount", "u1", Canonical("A1", "u1", decimal.NewFromInt(500))},
		{"auction", "u1", Canonical("A2", "u1", decimal.NewFromInt(50))},
		{"bidder in payload", "u1", Canonical("A1", "u2", decimal.NewFromInt(50))},
		{"other bidder's key", "u2", Canonical("A1", "u1", decimal.NewFromInt(50))},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			result, err := f.verifier.Verify(ctx, c.bidder, c.payload, sig)
			check.Error(t, err)
			check.Equal(t, Invalid, result)
		})
	}
}

func TestVerifyNormalizedAmount(t *testing.T) {
	f := newFixture(t, "u1")
	sig := f.sign(t, "u1", "A1", decimal.RequireFromString("50.50"))

	result, err := f.verifier.Verify(context.Background(), "u1", Canonical("A1", "u1", decimal.RequireFromString("50.5")), sig)
	check.NoError(t, err)
	check.Equal(t, Valid, result)
}

func TestVerifyKeyNotFound(t *testing.T) {
	f := newFixture(t, "u1")
	sig := f.sign(t, "u1", "A1", decimal.NewFromInt(50))

	result, err := f.verifier.Verify(context.Background(), "u9", Canonical("A1", "u9", decimal.NewFromInt(50)), sig)
	check.Error(t, err)
	check.Equal(t, KeyNotFound, result)
}

func TestVerifyMalformed(t *testing.T) {
	f := newFixture(t, "u1")
	payload := Canonical("A1", "u1", decimal.NewFromInt(50))
	ctx := context.Background()

	for name, sig := range map[string]string{
		"not base64": "%%%not-base64%%%",
		"empty":      "",
		"truncated":  base64.StdEncoding.EncodeToString(make([]byte, 128)),
	} {
		t.Run(name, func(t *testing.T) {
			result, err := f.verifier.Verify(ctx, "u1", payload, sig)
			check.Error(t, err)
			check.Equal(t, Malformed, result)
		})
	}
}

func TestResultString(t *testing.T) {
	check.Equal(t, "valid", Valid.String())
	check.Equal(t, "invalid_signature", Invalid.String())
	check.Equal(t, "key_not_found", KeyNotFound.String())
	check.Equal(t, "malformed_signature", Malformed.String())
}
