package blobs

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// IsDataURI reports whether s is an inline data URI.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// DecodeDataURI decodes an inline data URI into its payload and content type.
// Both base64 and percent-encoded payloads are accepted.
// Format: data:[<mediatype>][;base64],<data>
func DecodeDataURI(s string) ([]byte, string, error) {
	if !IsDataURI(s) {
		return nil, "", fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURI)
	}

	header, payload, found := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !found {
		return nil, "", fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}

	params := strings.Split(header, ";")
	contentType := params[0]
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(p, "base64") {
			isBase64 = true
		}
	}
	if contentType == "" {
		contentType = "text/plain"
	}

	var data []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some encoders omit padding
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
			}
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
		data = []byte(unescaped)
	}

	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}

	return data, normalizeMimeType(contentType), nil
}

// EncodeDataURI builds a base64 data URI.
func EncodeDataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
