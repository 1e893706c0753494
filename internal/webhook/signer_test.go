package webhook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSignKnownVector checks against a published HMAC-SHA256 digest.
func TestSignKnownVector(t *testing.T) {
	t.Parallel()

	got := Sign([]byte("The quick brown fox jumps over the lazy dog"), "key")
	require.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", got)
}

// TestSignSerializedPayload signs the exact wire bytes of a payload.
func TestSignSerializedPayload(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(CrawlStarted{Envelope: Envelope{Success: true, JobID: "job-1"}})
	require.NoError(t, err)
	require.Equal(t, "7aca5705c48b209b9091129850e36d1bda2f37a44080a7a33b76ffcf8f0e94c3", Sign(body, "s3cr3t"))
	require.Equal(t, "sha256=7aca5705c48b209b9091129850e36d1bda2f37a44080a7a33b76ffcf8f0e94c3",
		SignatureValue(body, "s3cr3t"))
}

// TestSignSensitivity flips every byte and expects a different digest.
func TestSignSensitivity(t *testing.T) {
	t.Parallel()

	body := []byte(`{"success":true,"type":"crawl.page","data":[]}`)
	base := Sign(body, "s3cr3t")
	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		require.NotEqual(t, base, Sign(mutated, "s3cr3t"), "byte %d", i)
	}
	require.NotEqual(t, base, Sign(body, "other"))
}

// TestVerify round-trips a header value.
func TestVerify(t *testing.T) {
	t.Parallel()

	body := []byte(`{"a":1}`)
	header := SignatureValue(body, "s3cr3t")
	require.True(t, Verify(body, header, "s3cr3t"))
	require.False(t, Verify(body, header, "wrong"))
	require.False(t, Verify([]byte(`{"a":2}`), header, "s3cr3t"))
	require.False(t, Verify(body, Sign(body, "s3cr3t"), "s3cr3t"))
	require.False(t, Verify(body, "sha256=zz", "s3cr3t"))
}
