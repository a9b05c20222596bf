package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	HeaderKeyID     = "x-api-key-id"
	HeaderTimestamp = "x-api-ts"
	HeaderSignature = "x-api-sig"
)

// Sign returns the hex HMAC-SHA256 of the request as clients must compute it.
func Sign(secret, method, path, body, ts string) string {
	payload := strings.Join([]string{strings.ToUpper(method), path, body, ts}, "\n")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret, method, path, body, ts, sig string) bool {
	expected := Sign(secret, method, path, body, ts)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sig)))
}
