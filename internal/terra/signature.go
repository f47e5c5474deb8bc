package terra

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "terra-signature"

var (
	// ErrMissingSignature is returned when the header or one of its parts is absent.
	ErrMissingSignature = errors.New("webhook signature missing")
	// ErrInvalidSignature is returned when the signature does not match the body.
	ErrInvalidSignature = errors.New("webhook signature invalid")
	// ErrNoSigningSecret is returned when verification runs without a secret.
	ErrNoSigningSecret = errors.New("webhook signing secret not configured")
)

// Sign returns the v1 signature of body for the timestamp t.
func Sign(secret, t string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(t))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "t=<unix>,v1=<hex>" header against body. Legacy v0
// signatures are ignored.
func VerifySignature(secret, header string, body []byte) error {
	if secret == "" {
		return ErrNoSigningSecret
	}
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}
	var t, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			t = value
		case "v1":
			v1 = value
		}
	}
	if t == "" || v1 == "" {
		return ErrMissingSignature
	}
	got, err := hex.DecodeString(strings.ToLower(v1))
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(t + "."))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrInvalidSignature
	}
	return nil
}
