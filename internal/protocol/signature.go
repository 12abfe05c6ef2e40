package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const hmacField = "hmac"

var (
	ErrSignatureMissing  = errors.New("hmac missing")
	ErrSignatureMismatch = errors.New("hmac mismatch")
)

// Signer computes the message MAC: HMAC-SHA256 keyed with the SHA-256 digest
// of the shared secret, over the message serialized without its hmac member.
type Signer struct {
	key []byte
}

func NewSigner(secret string) *Signer {
	sum := sha256.Sum256([]byte(secret))
	return &Signer{key: sum[:]}
}

func (s *Signer) Digest(fields Fields) (string, error) {
	msg, err := fields.Without(hmacField).MarshalJSON()
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Sign returns fields with the hmac member appended last.
func (s *Signer) Sign(fields Fields) (Fields, error) {
	fields = fields.Without(hmacField)
	digest, err := s.Digest(fields)
	if err != nil {
		return nil, err
	}
	return fields.Set(hmacField, digest)
}

func (s *Signer) Verify(fields Fields) error {
	supplied, ok := fields.GetString(hmacField)
	if !ok || supplied == "" {
		return ErrSignatureMissing
	}
	expected, err := s.Digest(fields)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(supplied))) {
		return ErrSignatureMismatch
	}
	return nil
}
