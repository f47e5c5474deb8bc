package terra

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"type":"auth"}`)
	sig := Sign("s3cret", "1700000000", body)

	require.NoError(t, VerifySignature("s3cret", "t=1700000000,v1="+sig, body))
	require.NoError(t, VerifySignature("s3cret", "t=1700000000, v1="+sig+", v0=legacy", body))

	require.ErrorIs(t, VerifySignature("s3cret", "t=1700000000,v1="+sig, []byte(`{"type":"deauth"}`)), ErrInvalidSignature)
	require.ErrorIs(t, VerifySignature("other", "t=1700000000,v1="+sig, body), ErrInvalidSignature)
	require.ErrorIs(t, VerifySignature("s3cret", "t=1700000001,v1="+sig, body), ErrInvalidSignature)
	require.ErrorIs(t, VerifySignature("s3cret", "t=1700000000,v1=zz", body), ErrInvalidSignature)
	require.ErrorIs(t, VerifySignature("s3cret", "", body), ErrMissingSignature)
	require.ErrorIs(t, VerifySignature("s3cret", "v1="+sig, body), ErrMissingSignature)
	require.ErrorIs(t, VerifySignature("", "t=1,v1="+sig, body), ErrNoSigningSecret)
}
