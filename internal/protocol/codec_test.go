package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santiagoj/homeguard/internal/models"
)

func TestRequestRoundTrip(t *testing.T) {
	for _, code := range []string{"ABC123", "ZZZ999", "a1", "X"} {
		body := EncodeRequest(code)
		got, ok := DecodeRequest(body)
		require.True(t, ok)
		assert.Equal(t, code, got)
	}
}

func TestDecodeRequestCaseInsensitivePrefix(t *testing.T) {
	code, ok := DecodeRequest("loc_req:ABC123")
	require.True(t, ok)
	assert.Equal(t, "ABC123", code)
}

func TestDecodeRequestRejectsOtherBodies(t *testing.T) {
	for _, body := range []string{"hello", "LOC_RESP:1,2", "", "LOCREQ:ABC"} {
		_, ok := DecodeRequest(body)
		assert.False(t, ok, "body %q must not decode as a request", body)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	tests := []struct {
		lat, lon float64
	}{
		{14.5995, 120.9842},
		{0, 0},
		{-33.8688, 151.2093},
		{14.599512345678, 120.984212345678},
	}

	for _, tt := range tests {
		body := EncodeResponse(tt.lat, tt.lon)
		lat, lon, ok, err := DecodeResponse(body)
		require.True(t, ok)
		require.NoError(t, err)
		assert.InDelta(t, tt.lat, lat, 1e-12)
		assert.InDelta(t, tt.lon, lon, 1e-12)
	}
}

func TestDecodeResponseCaseInsensitivePrefix(t *testing.T) {
	lat, lon, ok, err := DecodeResponse("loc_resp:14.5995,120.9842")
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 14.5995, lat)
	assert.Equal(t, 120.9842, lon)
}

func TestDecodeResponseMalformedPayload(t *testing.T) {
	for _, body := range []string{
		"LOC_RESP:",
		"LOC_RESP:14.5995",
		"LOC_RESP:abc,def",
		"LOC_RESP:1,2,3",
	} {
		_, _, ok, err := DecodeResponse(body)
		require.True(t, ok, "body %q carries the response prefix", body)
		assert.ErrorIs(t, err, models.ErrInvalidCoordinates)
	}
}

func TestDecodeResponseNotAResponse(t *testing.T) {
	_, _, ok, err := DecodeResponse("hello")
	assert.False(t, ok)
	assert.NoError(t, err)
}
