package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()
	secretKey := "whsec-test"
	payload := SignedPayload(1767225600, []byte(`{"event_type":"INVOICE_CONFIRMED"}`))

	signature := svc.Sign(secretKey, payload)

	assert.Regexp(t, `^[0-9a-f]{64}$`, signature, "signature should be 64-char lowercase hex (SHA-256)")
	assert.True(t, svc.Verify(secretKey, payload, signature))
}

func TestHMACSignatureService_VerifyFailures(t *testing.T) {
	svc := NewHMACSignatureService()
	signature := svc.Sign("correct-key", "original payload")

	assert.False(t, svc.Verify("wrong-key", "original payload", signature))
	assert.False(t, svc.Verify("correct-key", "tampered payload", signature))
	assert.False(t, svc.Verify("correct-key", "original payload", "invalidsignature"))
}

func TestHMACSignatureService_DeterministicSign(t *testing.T) {
	svc := NewHMACSignatureService()
	assert.Equal(t, svc.Sign("key", "data"), svc.Sign("key", "data"))
}

func TestSignedPayload(t *testing.T) {
	assert.Equal(t, `1767225600.{"a":1}`, SignedPayload(1767225600, []byte(`{"a":1}`)))
	assert.Equal(t, "5.", SignedPayload(5, nil))
}

func TestSignatureHeader_RoundTrip(t *testing.T) {
	header := FormatSignatureHeader(1767225600, "abc123")
	assert.Equal(t, "t=1767225600,v1=abc123", header)

	ts, sig, err := ParseSignatureHeader(header)
	require.NoError(t, err)
	assert.Equal(t, int64(1767225600), ts)
	assert.Equal(t, "abc123", sig)
}

func TestParseSignatureHeader_Malformed(t *testing.T) {
	for _, h := range []string{"", "v1=abc", "t=1", "t=x,v1=abc", "garbage"} {
		_, _, err := ParseSignatureHeader(h)
		assert.Error(t, err, h)
	}
}
