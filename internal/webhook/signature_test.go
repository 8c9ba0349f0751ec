package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referenceSignature(key []byte, signed string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(signed))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignMatchesReferenceHMAC(t *testing.T) {
	body := []byte(`{"type":"subscription.created","data":{}}`)
	got := Sign([]byte("shh"), "msg_1", "1700000000", body)
	want := referenceSignature([]byte("shh"), "msg_1.1700000000."+string(body))
	assert.Equal(t, want, got)
}

func TestVerifyStandardWebhooksVector(t *testing.T) {
	secret := "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
	body := []byte(`{"test": 2432232314}`)
	header := "v1,g0hM9SsE+OTPJTGt/tmIKtSyZlE3uFJELVlNIOLJ1OE="

	assert.True(t, Verify(secret, "msg_p5jXN8AQM9LWM0D4loKWxJek", "1614265330", body, header))
	assert.False(t, Verify(secret, "msg_p5jXN8AQM9LWM0D4loKWxJek", "1614265330", []byte(`{"test": 2432232315}`), header))
}

func TestVerifyAcceptsRawAndBase64Keys(t *testing.T) {
	secret := "polar-secret"
	body := []byte(`{"type":"checkout.completed"}`)

	raw := Sign([]byte(secret), "id", "1", body)
	require.True(t, Verify(secret, "id", "1", body, raw))

	encodedKey := []byte(base64.StdEncoding.EncodeToString([]byte(secret)))
	encoded := Sign(encodedKey, "id", "1", body)
	require.True(t, Verify(secret, "id", "1", body, "v1,"+encoded))

	// Multiple space-separated signatures, one valid.
	assert.True(t, Verify(secret, "id", "1", body, "v1,bm9wZQ== v1,"+raw))
}

func TestVerifyDetectsTampering(t *testing.T) {
	secret := "polar-secret"
	body := []byte(`{"type":"subscription.updated","data":{"status":"active"}}`)
	sig := Sign([]byte(secret), "id", "1700000000", body)

	assert.False(t, Verify(secret, "id", "1700000000", []byte(`{"type":"subscription.updated","data":{"status":"trialing"}}`), sig))
	assert.False(t, Verify(secret, "id", "1700000001", body, sig))
	assert.False(t, Verify(secret, "other", "1700000000", body, sig))
	assert.False(t, Verify("wrong", "id", "1700000000", body, sig))
	assert.False(t, Verify(secret, "id", "1700000000", body, "v2,"+sig))
	assert.False(t, Verify("", "id", "1700000000", body, sig))
	assert.False(t, Verify(secret, "", "1700000000", body, sig))
}
