package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signPaystack(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyPaystackSignature(t *testing.T) {
	secret := "sk_test_secret"
	body := []byte(`{"event":"charge.success","data":{"reference":"RPS-1-abc"}}`)

	assert.True(t, VerifyPaystackSignature(body, signPaystack(body, secret), secret))
	assert.False(t, VerifyPaystackSignature(body, signPaystack(body, "wrong_secret"), secret))
	assert.False(t, VerifyPaystackSignature(body, "deadbeef", secret))
	assert.False(t, VerifyPaystackSignature(body, "", secret))

	// Any change to the body invalidates the signature.
	sig := signPaystack(body, secret)
	tampered := append([]byte{}, body...)
	tampered[0] = ' '
	assert.False(t, VerifyPaystackSignature(tampered, sig, secret))
}

func TestPesapalTokenRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/Auth/RequestToken", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "test-key", payload["consumer_key"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":  "test-token",
			"status": "200",
		})
	}))
	defer server.Close()

	oldBase := pesapalBaseURL
	pesapalBaseURL = server.URL
	defer func() { pesapalBaseURL = oldBase }()

	t.Setenv("PESAPAL_CONSUMER_KEY", "test-key")
	t.Setenv("PESAPAL_CONSUMER_SECRET", "test-secret")

	token, err := pesapalToken()
	require.NoError(t, err)
	assert.Equal(t, "test-token", token)
}

func TestGetPesapalTransactionStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/Auth/RequestToken":
			json.NewEncoder(w).Encode(map[string]interface{}{"token": "test-token"})
		case "/api/Transactions/GetTransactionStatus":
			assert.Equal(t, "tracking-123", r.URL.Query().Get("orderTrackingId"))
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"payment_status_description": "Completed",
				"status_code":                1,
				"merchant_reference":         "RPS-1-abc",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	oldBase := pesapalBaseURL
	pesapalBaseURL = server.URL
	defer func() { pesapalBaseURL = oldBase }()

	t.Setenv("PESAPAL_CONSUMER_KEY", "test-key")
	t.Setenv("PESAPAL_CONSUMER_SECRET", "test-secret")

	status, err := getPesapalTransactionStatus("tracking-123")
	require.NoError(t, err)
	assert.Equal(t, pesapalStatusCompleted, status.StatusCode)
	assert.Equal(t, "RPS-1-abc", status.MerchantReference)
}
