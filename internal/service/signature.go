package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// SignatureService signs webhook payloads and verifies their signatures with
// HMAC-SHA256. It is stateless and safe for concurrent use.
type SignatureService struct{}

// NewSignatureService creates a SignatureService.
func NewSignatureService() *SignatureService {
	return &SignatureService{}
}

// Sign returns the "sha256=<hex>" HMAC of payload keyed by secret.
func (s *SignatureService) Sign(payload []byte, secret string) string {
	return signaturePrefix + hex.EncodeToString(computeMAC(payload, secret))
}

// Verify reports whether signature matches payload under secret. The
// "sha256=" prefix is optional. The digest comparison is constant-time.
func (s *SignatureService) Verify(payload []byte, signature, secret string) bool {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return false
	}
	return hmac.Equal(sig, computeMAC(payload, secret))
}

func computeMAC(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
