package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"
)

func TestSign(t *testing.T) {
	tests := []struct {
		name      string
		username  string
		accountID string
		secret    string
		timestamp string
	}{
		{
			name:      "typical credentials",
			username:  "bookingcenter",
			accountID: "250160000011",
			secret:    "s3cret",
			timestamp: "20240115093000",
		},
		{
			name:      "empty secret",
			username:  "u",
			accountID: "a",
			secret:    "",
			timestamp: "20240101000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sign(tt.username, tt.accountID, tt.secret, tt.timestamp)

			sum := sha256.Sum256([]byte(tt.username + tt.accountID + tt.secret + tt.timestamp))
			want := hex.EncodeToString(sum[:])
			if got != want {
				t.Errorf("Sign() = %v, want %v", got, want)
			}

			// Deterministic: same inputs, byte-identical digest.
			if again := Sign(tt.username, tt.accountID, tt.secret, tt.timestamp); again != got {
				t.Errorf("Sign() not deterministic: %v != %v", again, got)
			}
		})
	}
}

func TestSignDistinctInputs(t *testing.T) {
	base := Sign("user", "account", "secret", "20240115093000")
	variants := []string{
		Sign("user2", "account", "secret", "20240115093000"),
		Sign("user", "account2", "secret", "20240115093000"),
		Sign("user", "account", "secret2", "20240115093000"),
		Sign("user", "account", "secret", "20240115093001"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d produced the same digest as the base input", i)
		}
	}
}

func TestTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 15, 9, 30, 5, 0, time.Local)
	if got := Timestamp(ts); got != "20240115093005" {
		t.Errorf("Timestamp() = %v, want 20240115093005", got)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "webhook-secret"
	payload := []byte(`{"requesttransactionid":"BC123","responsecode":"2001"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	if !VerifyWebhookSignature(payload, valid, secret) {
		t.Error("valid signature rejected")
	}

	// Flip one bit of the signature.
	flipped := []byte(valid)
	flipped[0] ^= 0x01
	if VerifyWebhookSignature(payload, string(flipped), secret) {
		t.Error("bit-flipped signature accepted")
	}

	// Flip one bit of the payload.
	tampered := make([]byte, len(payload))
	copy(tampered, payload)
	tampered[0] ^= 0x01
	if VerifyWebhookSignature(tampered, valid, secret) {
		t.Error("tampered payload accepted")
	}

	if VerifyWebhookSignature(payload, valid, "other-secret") {
		t.Error("signature accepted under the wrong secret")
	}

	if VerifyWebhookSignature(payload, "", secret) {
		t.Error("empty signature accepted")
	}
}

// The comparison must not get meaningfully faster as the matching prefix
// shrinks. This samples equal-length wrong signatures with different
// mismatching-prefix lengths and checks the spread stays within noise.
func TestVerifyWebhookSignatureConstantTime(t *testing.T) {
	if testing.Short() {
		t.Skip("timing measurement skipped in short mode")
	}

	secret := "webhook-secret"
	payload := []byte(`{"requesttransactionid":"BC123"}`)
	valid := WebhookSignature(payload, secret)

	timeFor := func(sig string) time.Duration {
		const rounds = 20000
		start := time.Now()
		for i := 0; i < rounds; i++ {
			VerifyWebhookSignature(payload, sig, secret)
		}
		return time.Since(start)
	}

	// Wrong in the first byte vs wrong only in the last byte.
	early := []byte(valid)
	early[0] ^= 0x01
	late := []byte(valid)
	late[len(late)-1] ^= 0x01

	// Warm up, then measure.
	timeFor(string(early))
	dEarly := timeFor(string(early))
	dLate := timeFor(string(late))

	ratio := float64(dEarly) / float64(dLate)
	if ratio < 0.5 || ratio > 2.0 {
		t.Errorf("comparison time varies with mismatch position: early=%v late=%v", dEarly, dLate)
	}
}
