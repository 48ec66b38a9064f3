// Package refimage validates uploaded reference photos and prepares image
// payloads for transport, preview and download.
package refimage

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
)

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWEBP = "image/webp"
)

var (
	ErrEmpty       = errors.New("image is empty")
	ErrUnsupported = errors.New("unsupported image type")
)

// Image is a decoded and validated reference photo.
type Image struct {
	Data     []byte
	MIMEType string
	Name     string
	Width    int
	Height   int
}

// Decode sniffs the payload, accepts PNG, JPEG and WEBP only and makes sure
// it actually decodes. The client-supplied content type is not trusted.
func Decode(data []byte, name string) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	mimeType := DetectMIME(data)
	img, err := decode(data, mimeType)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	return &Image{
		Data:     data,
		MIMEType: mimeType,
		Name:     strings.TrimSpace(name),
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// DetectMIME returns the sniffed media type without parameters.
func DetectMIME(data []byte) string {
	mimeType := http.DetectContentType(data)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.TrimSpace(mimeType)
}

func decode(data []byte, mimeType string) (image.Image, error) {
	r := bytes.NewReader(data)

	var (
		img image.Image
		err error
	)
	switch mimeType {
	case MIMEPNG:
		img, err = png.Decode(r)
	case MIMEJPEG:
		img, err = jpeg.Decode(r)
	case MIMEWEBP:
		img, err = webp.Decode(r, &decoder.Options{})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mimeType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", mimeType, err)
	}
	return img, nil
}

// Base64 returns the standard base64 encoding of the payload.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the payload as a data: URL.
func (i *Image) DataURL() string {
	return DataURL(i.MIMEType, i.Data)
}

func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// PreviewJPEG re-encodes an image as JPEG for lightweight previews.
func PreviewJPEG(img *Image, quality int) ([]byte, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, ErrEmpty
	}
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	decoded, err := decode(img.Data, img.MIMEType)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, decoded, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// DownloadName builds the file name offered for a generated image.
func DownloadName(ts time.Time, index int, mimeType string) string {
	return fmt.Sprintf("generated-image-%d-%d%s", ts.UnixMilli(), index+1, Extension(mimeType))
}

// Extension maps an image media type to a file extension, defaulting to .jpg.
func Extension(mimeType string) string {
	switch mimeType {
	case MIMEPNG:
		return ".png"
	case MIMEWEBP:
		return ".webp"
	case MIMEJPEG, "":
		return ".jpg"
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ".jpg"
}
