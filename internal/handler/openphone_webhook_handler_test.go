package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/leadline/crm-call-sync/internal/openphone"
	"github.com/leadline/crm-call-sync/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedHeader(t *testing.T, payload []byte, keyBase64 string) string {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	require.NoError(t, err)
	timestamp := "1700000000000"
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("hmac;1;%s;%s", timestamp, base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

func postWebhook(h *OpenPhoneWebhookHandler, payload []byte, signature string) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	SetupOpenPhoneWebhookRoutes(r, h)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/openphone", bytes.NewBuffer(payload))
	if signature != "" {
		req.Header.Set(openphone.SignatureHeader, signature)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestWebhookRoutesSignedEvent(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("signing-key"))
	var routed []string
	eventRouter := router.New(map[string]router.Handler{
		openphone.EventCallCompleted: func(_ context.Context, env openphone.Envelope) error {
			routed = append(routed, env.ID)
			return nil
		},
	})
	h := NewOpenPhoneWebhookHandler(eventRouter, key, nil)

	payload := []byte(`{"id": "EV1", "type": "call.completed", "data": {"object": {"id": "AC1"}}}`)
	rr := postWebhook(h, payload, signedHeader(t, payload, key))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"EV1"}, routed)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["received"])
	assert.NotContains(t, body, "error")
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("signing-key"))
	called := false
	eventRouter := router.New(map[string]router.Handler{
		openphone.EventCallCompleted: func(context.Context, openphone.Envelope) error {
			called = true
			return nil
		},
	})
	h := NewOpenPhoneWebhookHandler(eventRouter, key, nil)

	payload := []byte(`{"id": "EV1", "type": "call.completed", "data": {}}`)
	rr := postWebhook(h, payload, "hmac;1;1700000000000;Zm9yZ2Vk")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, called)
}

func TestWebhookSkipsVerificationWithoutKey(t *testing.T) {
	called := false
	eventRouter := router.New(map[string]router.Handler{
		openphone.EventCallCompleted: func(context.Context, openphone.Envelope) error {
			called = true
			return nil
		},
	})
	h := NewOpenPhoneWebhookHandler(eventRouter, "", nil)

	payload := []byte(`{"id": "EV1", "type": "call.completed", "data": {}}`)
	rr := postWebhook(h, payload, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, called)
}

func TestWebhookAcksUnknownEventType(t *testing.T) {
	h := NewOpenPhoneWebhookHandler(router.New(nil), "", nil)

	payload := []byte(`{"id": "EV1", "type": "message.received", "data": {}}`)
	rr := postWebhook(h, payload, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookAcksMalformedPayload(t *testing.T) {
	h := NewOpenPhoneWebhookHandler(router.New(nil), "", nil)

	rr := postWebhook(h, []byte(`{broken`), "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["received"])
	assert.Equal(t, "invalid payload", body["error"])
}

func TestWebhookAcksHandlerError(t *testing.T) {
	eventRouter := router.New(map[string]router.Handler{
		openphone.EventCallCompleted: func(context.Context, openphone.Envelope) error {
			return errors.New("store unavailable")
		},
	})
	h := NewOpenPhoneWebhookHandler(eventRouter, "", nil)

	payload := []byte(`{"id": "EV1", "type": "call.completed", "data": {}}`)
	rr := postWebhook(h, payload, "")

	assert.Equal(t, http.StatusOK, rr.Code, "handler failures still acknowledge the delivery")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["received"])
	assert.Equal(t, "store unavailable", body["error"])
}
