package generate

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageSize is the largest decoded image accepted inline (8MB)
const MaxImageSize = 8 * 1024 * 1024

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
	"image/gif":  true,
}

// Image is an inline image part
type Image struct {
	MIMEType string
	Data     []byte
}

// ParseImage decodes a data URI ("data:image/png;base64,...") or bare base64.
// The data URI's type wins over declared. Without either the type is sniffed
// from the decoded bytes.
func ParseImage(raw, declared string) (*Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	mimeType := strings.ToLower(strings.TrimSpace(declared))
	payload := raw
	if strings.HasPrefix(raw, "data:") {
		header, data, ok := strings.Cut(raw[len("data:"):], ",")
		if !ok {
			return nil, fmt.Errorf("%w: malformed data URI", ErrInvalidImage)
		}
		params := strings.Split(header, ";")
		if !containsFold(params[1:], "base64") {
			return nil, fmt.Errorf("%w: data URI must be base64 encoded", ErrInvalidImage)
		}
		if params[0] != "" {
			mimeType = strings.ToLower(params[0])
		}
		payload = data
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if len(data) > MaxImageSize {
		return nil, fmt.Errorf("%w: image size %d exceeds maximum %d", ErrInvalidImage, len(data), MaxImageSize)
	}

	if mimeType == "" {
		mimeType, _, _ = strings.Cut(mimetype.Detect(data).String(), ";")
	}
	if !validImageTypes[mimeType] {
		return nil, fmt.Errorf("%w: unsupported content type %s", ErrInvalidImage, mimeType)
	}

	return &Image{MIMEType: mimeType, Data: data}, nil
}

// Base64 returns the standard base64 encoding of the image bytes
func (img *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	if data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}
