package generate

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

func TestParseImage_DataURI(t *testing.T) {
	raw := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	img, err := ParseImage(raw, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, pngBytes, img.Data)
}

func TestParseImage_DeclaredType(t *testing.T) {
	img, err := ParseImage(base64.StdEncoding.EncodeToString(jpegBytes), "IMAGE/JPEG")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
}

func TestParseImage_DetectedType(t *testing.T) {
	img, err := ParseImage(base64.StdEncoding.EncodeToString(pngBytes), "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	img, err = ParseImage(base64.StdEncoding.EncodeToString(jpegBytes), "")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
}

func TestParseImage_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		declared string
	}{
		{"empty", "", ""},
		{"not base64", "!!!not-base64!!!", "image/png"},
		{"data uri without comma", "data:image/png;base64", ""},
		{"data uri not base64", "data:image/png," + string(pngBytes), ""},
		{"unsupported declared", base64.StdEncoding.EncodeToString(pngBytes), "application/pdf"},
		{"sniffed text", base64.StdEncoding.EncodeToString([]byte("just some text")), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseImage(tt.raw, tt.declared)
			assert.ErrorIs(t, err, ErrInvalidImage)
		})
	}
}

func TestParseImage_TooLarge(t *testing.T) {
	data := append([]byte{}, pngBytes...)
	data = append(data, []byte(strings.Repeat("a", MaxImageSize))...)

	_, err := ParseImage(base64.StdEncoding.EncodeToString(data), "image/png")
	assert.ErrorIs(t, err, ErrInvalidImage)
}
