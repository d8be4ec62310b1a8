package app

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/blake2b"
)

// DecodeImage accepts raw base64 or a data URL and returns the decoded
// bytes. Everything after the first comma of a data URL is the payload.
func DecodeImage(encoded string) ([]byte, error) {
	payload := strings.TrimSpace(encoded)
	if idx := strings.Index(payload, ","); idx >= 0 {
		payload = payload[idx+1:]
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, ErrImageInvalid
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, ErrImageInvalid
		}
	}
	return data, nil
}

// SniffImageMIME returns the detected MIME type, rejecting anything that is
// not an image.
func SniffImageMIME(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrImageInvalid
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", ErrImageInvalid
	}
	return mime.String(), nil
}

// ImageDigest is the hex BLAKE2b-256 of data.
func ImageDigest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
