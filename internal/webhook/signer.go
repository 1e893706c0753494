package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the body signature on outbound requests.
const SignatureHeader = "X-Firecrawl-Signature"

const signaturePrefix = "sha256="

// Sign returns the hex HMAC-SHA256 digest of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureValue formats the header value for body, e.g. "sha256=ab12...".
func SignatureValue(body []byte, secret string) string {
	return signaturePrefix + Sign(body, secret)
}

// Verify checks a received header value against body in constant time.
func Verify(body []byte, header, secret string) bool {
	digest, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
