// Package signature authenticates bids with RSA PKCS#1 v1.5 signatures over SHA-256.
package signature

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Canonical returns the byte sequence a bidder signs: a compact JSON object with
// the keys amount, auctionId and bidderId in that order. The amount is written as
// a JSON number in normalized form, so 50.50 and 50.5 encode identically.
func Canonical(auctionID, bidderID string, amount decimal.Decimal) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"amount":`)
	buf.WriteString(amount.String())
	buf.WriteString(`,"auctionId":`)
	writeString(&buf, auctionID)
	buf.WriteString(`,"bidderId":`)
	writeString(&buf, bidderID)
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	// Encode never fails for a string.
	_ = enc.Encode(s)
	// Encoder appends a newline.
	buf.Truncate(buf.Len() - 1)
}
