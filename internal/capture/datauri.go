package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const dataURIPrefix = "data:image"

var (
	// ErrNotDataURI is returned when a payload is not an image data URI.
	ErrNotDataURI = errors.New("payload is not an image data URI")
	// ErrDecode is returned when an image payload cannot be decoded.
	ErrDecode = errors.New("failed to decode image")
)

// IsImageDataURI reports whether s looks like an image data URI.
func IsImageDataURI(s string) bool {
	return strings.HasPrefix(s, dataURIPrefix)
}

// DecodeDataURI returns the encoded image bytes of a base64 image data URI,
// such as "data:image/jpeg;base64,/9j/...".
func DecodeDataURI(uri string) ([]byte, error) {
	if !IsImageDataURI(uri) {
		return nil, ErrNotDataURI
	}

	meta, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload separator", ErrDecode)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: only base64 data URIs are supported", ErrDecode)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients strip padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	return data, nil
}

// EncodeDataURI wraps encoded image bytes in a data URI with the given MIME type.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
