package common

import (
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandToken_URLSafeAndEntropy(t *testing.T) {
	a, err := MakeRandToken(StateBytes)
	require.NoError(t, err)
	b, err := MakeRandToken(StateBytes)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, StateBytes)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
	assert.NotContains(t, a, "=")
	assert.NotEqual(t, a, b)
}

func TestWipeByteArray(t *testing.T) {
	buf := []byte("secret123")
	WipeByteArray(buf)
	for i, v := range buf {
		assert.Zerof(t, v, "byte %d not wiped", i)
	}
	WipeByteArray(nil)
}

func TestProviderError_MatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("bad code")
	err := error(&ProviderError{Op: OpExchange, Status: http.StatusUnauthorized, Err: cause})

	assert.ErrorIs(t, err, ErrProviderExchangeFailed)
	assert.ErrorIs(t, err, cause)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.Status)
	assert.Contains(t, err.Error(), "401")
}
