package openphone

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signPayload(t *testing.T, payload []byte, keyBase64, timestamp string) string {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		t.Fatalf("bad test key: %v", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	digest := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("hmac;1;%s;%s", timestamp, digest)
}

func TestVerifySignatureValid(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("super-secret-signing-key"))
	payload := []byte(`{"type":"call.completed","data":{"object":{"id":"AC1"}}}`)

	header := signPayload(t, payload, key, "1700000000000")
	assert.True(t, VerifySignature(payload, header, key))
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("super-secret-signing-key"))
	payload := []byte(`{"type":"call.completed"}`)

	header := signPayload(t, payload, key, "1700000000000")
	assert.False(t, VerifySignature([]byte(`{"type":"call.ringing"}`), header, key))
}

func TestVerifySignatureWrongKey(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("super-secret-signing-key"))
	otherKey := base64.StdEncoding.EncodeToString([]byte("a-different-key"))
	payload := []byte(`{}`)

	header := signPayload(t, payload, key, "1700000000000")
	assert.False(t, VerifySignature(payload, header, otherKey))
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("k"))
	payload := []byte(`{}`)

	// Wrong field count
	assert.False(t, VerifySignature(payload, "hmac;1;1700000000000", key))
	assert.False(t, VerifySignature(payload, "", key))
	// Wrong scheme
	header := signPayload(t, payload, key, "1700000000000")
	assert.False(t, VerifySignature(payload, "sha1"+header[4:], key))
}

func TestVerifySignatureBadKeyEncoding(t *testing.T) {
	payload := []byte(`{}`)
	header := "hmac;1;1700000000000;AAAA"
	assert.False(t, VerifySignature(payload, header, "not-base64!!!"))
}
