package payment

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeProof(t *testing.T) {
	t.Run("Base64WrappedJSON", func(t *testing.T) {
		header := base64.StdEncoding.EncodeToString([]byte(`{"x402Version":2,"payload":{"signature":"0xsig"}}`))

		proof, err := DecodeProof(header)
		require.NoError(t, err)
		require.Equal(t, 2, proof.Version)
		require.Contains(t, proof.Payload, "payload")
	})

	t.Run("RawJSON", func(t *testing.T) {
		proof, err := DecodeProof(`{"x402Version":1,"signature":"0xsig"}`)
		require.NoError(t, err)
		require.Equal(t, 1, proof.Version)
	})

	t.Run("VersionDefaultsToOne", func(t *testing.T) {
		proof, err := DecodeProof(`{"signature":"0xsig"}`)
		require.NoError(t, err)
		require.Equal(t, 1, proof.Version)
	})

	t.Run("NonNumericVersionDefaultsToOne", func(t *testing.T) {
		proof, err := DecodeProof(`{"x402Version":"two"}`)
		require.NoError(t, err)
		require.Equal(t, 1, proof.Version)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := DecodeProof("not json, not base64!!")
		require.ErrorIs(t, err, ErrUndecodable)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := DecodeProof("   ")
		require.ErrorIs(t, err, ErrUndecodable)
	})

	t.Run("Base64OfNonJSONFallsThrough", func(t *testing.T) {
		// Valid base64 whose decoded bytes are not JSON must not mask the
		// raw-JSON path.
		header := base64.StdEncoding.EncodeToString([]byte("plain text"))
		_, err := DecodeProof(header)
		require.ErrorIs(t, err, ErrUndecodable)
	})
}

func TestProofFromHeaders(t *testing.T) {
	h := http.Header{}
	require.Empty(t, ProofFromHeaders(h.Get))

	h.Set(ProofHeaderV1, "v1-proof")
	require.Equal(t, "v1-proof", ProofFromHeaders(h.Get))

	// v2 wins when both are present
	h.Set(ProofHeaderV2, "v2-proof")
	require.Equal(t, "v2-proof", ProofFromHeaders(h.Get))
}
