package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TimestampFormat is the aggregator's required timestamp layout.
const TimestampFormat = "20060102150405"

// Timestamp renders t in the aggregator's YYYYMMDDHHmmss layout, local time.
func Timestamp(t time.Time) string {
	return t.Format(TimestampFormat)
}

// Sign computes the request password for an outbound aggregator call:
// the lowercase hex SHA-256 of username + accountID + secret + timestamp,
// concatenated without delimiters. Identical inputs always produce an
// identical digest.
func Sign(username, accountID, secret, timestamp string) string {
	sum := sha256.Sum256([]byte(username + accountID + secret + timestamp))
	return hex.EncodeToString(sum[:])
}

// WebhookSignature computes the expected HMAC-SHA256 signature for an
// inbound callback payload.
func WebhookSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks provided against the HMAC-SHA256 of the raw
// payload bytes. The comparison is constant time over the full presented
// signature so mismatch position does not leak through timing.
func VerifyWebhookSignature(payload []byte, provided, secret string) bool {
	expected := WebhookSignature(payload, secret)
	return hmac.Equal([]byte(provided), []byte(expected))
}
