package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/santiagoj/homeguard/internal/models"
)

// Wire prefixes for the SMS fallback channel. Matching is case-insensitive
// on the prefix; payload fields are matched exactly.
const (
	RequestPrefix  = "LOC_REQ:"
	ResponsePrefix = "LOC_RESP:"
)

// EncodeRequest builds the outbound location-request body carrying the
// requester's own pairing code.
func EncodeRequest(ownPairingCode string) string {
	return RequestPrefix + ownPairingCode
}

// EncodeResponse builds the outbound location-response body
func EncodeResponse(lat, lon float64) string {
	return ResponsePrefix +
		strconv.FormatFloat(lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(lon, 'f', -1, 64)
}

// DecodeRequest extracts the pairing code from a request body. ok is false
// when the body is not a location request at all.
func DecodeRequest(body string) (code string, ok bool) {
	rest, ok := trimPrefixFold(strings.TrimSpace(body), RequestPrefix)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// DecodeResponse extracts the coordinates from a response body. ok reports
// whether the body carried the response prefix; a body that is a response
// but has a malformed payload yields models.ErrInvalidCoordinates.
func DecodeResponse(body string) (lat, lon float64, ok bool, err error) {
	rest, ok := trimPrefixFold(strings.TrimSpace(body), ResponsePrefix)
	if !ok {
		return 0, 0, false, nil
	}

	parts := strings.Split(strings.TrimSpace(rest), ",")
	if len(parts) != 2 {
		return 0, 0, true, fmt.Errorf("%w: %q", models.ErrInvalidCoordinates, rest)
	}

	lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if latErr != nil || lonErr != nil {
		return 0, 0, true, fmt.Errorf("%w: %q", models.ErrInvalidCoordinates, rest)
	}

	return lat, lon, true, nil
}

// trimPrefixFold strips prefix from s ignoring ASCII case
func trimPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) {
		return s, false
	}
	if !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
