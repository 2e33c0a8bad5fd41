package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// VerifyCashfreeWebhookSignature checks the x-webhook-signature header
// against the raw payload. Cashfree signs each delivery with
// base64(HMAC-SHA256(timestamp + payload)) keyed by the merchant client
// secret, with the timestamp carried in x-webhook-timestamp.
func VerifyCashfreeWebhookSignature(payload []byte, timestampHeader, signatureHeader, clientSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	ts := strings.TrimSpace(timestampHeader)
	secret := strings.TrimSpace(clientSecret)
	if sig == "" || ts == "" || secret == "" {
		return false
	}

	decodedSig, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}
