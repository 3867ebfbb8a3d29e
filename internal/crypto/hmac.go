package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names sent to the OMS gateway.
const (
	HeaderAPIKey    = "OMS-API-KEY"
	HeaderTimestamp = "OMS-TIMESTAMP"
	HeaderSignature = "OMS-SIGNATURE"
)

// HMACAuth holds the credentials of the OMS gateway API.
type HMACAuth struct {
	Key    string
	Secret string
}

// Headers returns the authentication headers of a request. The signature
// is HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().UnixMilli())
}

// HeadersAt is Headers with a caller supplied millisecond timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixMilli int64) map[string]string {
	ts := strconv.FormatInt(unixMilli, 10)
	return map[string]string{
		HeaderAPIKey:    h.Key,
		HeaderTimestamp: ts,
		HeaderSignature: Sign([]byte(h.Secret), ts+method+path+body),
	}
}

// Verify reports whether signature matches the message fields.
func (h *HMACAuth) Verify(method, path, body, ts, signature string) bool {
	expected := Sign([]byte(h.Secret), ts+method+path+body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes HMAC-SHA256 of message and encodes it as base64.
func Sign(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
