// Package imgutil prepares uploaded artifact images for the model gateway.
package imgutil

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
)

// JPEGMIMEType is the MIME type of CompressToJPEG output.
const JPEGMIMEType = "image/jpeg"

// CompressToJPEG re-encodes image data (PNG, GIF, JPEG) as JPEG at the given
// quality. Any format image.Decode understands is accepted.
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DetectMIMEType sniffs the content type of data. The second return value is
// false when the bytes do not look like an image.
func DetectMIMEType(data []byte) (string, bool) {
	mimeType := http.DetectContentType(data)
	return mimeType, strings.HasPrefix(mimeType, "image/")
}
