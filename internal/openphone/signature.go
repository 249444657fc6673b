package openphone

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader is the header OpenPhone signs webhook deliveries with.
const SignatureHeader = "openphone-signature"

const signatureScheme = "hmac"

// VerifySignature checks that a webhook payload genuinely originated from
// OpenPhone. The header value carries four semicolon-separated fields:
// scheme;version;timestamp;signature. The signature is a base64 HMAC-SHA256
// digest over "{timestamp}.{payload}" keyed with the base64-decoded signing
// key. Any parse or decode failure fails closed.
func VerifySignature(payload []byte, signatureHeader, signingKeyBase64 string) bool {
	fields := strings.Split(signatureHeader, ";")
	if len(fields) != 4 {
		return false
	}

	scheme, timestamp, provided := fields[0], fields[2], fields[3]
	if scheme != signatureScheme {
		return false
	}

	key, err := base64.StdEncoding.DecodeString(signingKeyBase64)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(provided))
}
