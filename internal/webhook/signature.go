package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Standard Webhooks header names.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

const secretPrefix = "whsec_"

// Sign computes the base64 HMAC-SHA256 of "{id}.{timestamp}.{body}" with key.
func Sign(key []byte, id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a webhook-signature header against the shared secret.
// The secret is tried as raw UTF-8 bytes and as its base64 encoding; a "whsec_" secret is also tried decoded.
// The header may be a bare signature or space-separated "v1,<sig>" entries.
func Verify(secret, id, timestamp string, body []byte, header string) bool {
	secret = strings.TrimSpace(secret)
	if secret == "" || id == "" || timestamp == "" || strings.TrimSpace(header) == "" {
		return false
	}
	provided := signatureCandidates(header)
	for _, key := range candidateKeys(secret) {
		expected := []byte(Sign(key, id, timestamp, body))
		for _, sig := range provided {
			if hmac.Equal([]byte(sig), expected) {
				return true
			}
		}
	}
	return false
}

func candidateKeys(secret string) [][]byte {
	keys := [][]byte{
		[]byte(secret),
		[]byte(base64.StdEncoding.EncodeToString([]byte(secret))),
	}
	if strings.HasPrefix(secret, secretPrefix) {
		if decoded, errDecode := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix)); errDecode == nil {
			keys = append(keys, decoded)
		}
	}
	return keys
}

func signatureCandidates(header string) []string {
	header = strings.TrimSpace(header)
	out := []string{header}
	for _, part := range strings.Fields(header) {
		version, sig, found := strings.Cut(part, ",")
		if !found {
			if part != header {
				out = append(out, part)
			}
			continue
		}
		if version == "v1" && sig != "" {
			out = append(out, sig)
		}
	}
	return out
}
