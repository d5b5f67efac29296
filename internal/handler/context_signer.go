package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// contextSigner authenticates the identification context that the browser
// sends back with a follow-up question.
type contextSigner struct {
	key []byte
}

func newContextSigner(secret string) *contextSigner {
	return &contextSigner{key: []byte(secret)}
}

func (s *contextSigner) Sign(name, info, image string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(name))
	mac.Write([]byte{0})
	mac.Write([]byte(info))
	mac.Write([]byte{0})
	mac.Write([]byte(image))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *contextSigner) Verify(name, info, image, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(s.Sign(name, info, image))
	return hmac.Equal(got, want)
}
