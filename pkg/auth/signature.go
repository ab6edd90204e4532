package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const signaturePrefix = "sha256="

// SignPayload returns the "sha256=<hex>" HMAC of payload.
func SignPayload(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return signaturePrefix + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature validates an HMAC-SHA256 webhook signature. The prefix is optional.
func VerifySignature(secret string, payload []byte, signature string) error {
	if signature == "" {
		return errors.New("missing signature")
	}
	provided := strings.TrimPrefix(signature, signaturePrefix)
	expected := strings.TrimPrefix(SignPayload(secret, payload), signaturePrefix)

	// Use constant-time comparison to prevent timing attacks
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return errors.New("invalid signature")
	}
	return nil
}
