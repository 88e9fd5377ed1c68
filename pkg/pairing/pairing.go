// Package pairing renders WhatsApp pairing codes as images, data URLs and
// terminal output.
package pairing

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/mdp/qrterminal/v3"
	qrCode "github.com/skip2/go-qrcode"
	"github.com/sunshineplan/imgconv"
	"github.com/vincent-petithory/dataurl"
)

const (
	DefaultSize = 256
	MinSize     = 128
	MaxSize     = 1024
)

var contentTypes = map[imgconv.Format]string{
	imgconv.PNG:  "image/png",
	imgconv.JPEG: "image/jpeg",
	imgconv.GIF:  "image/gif",
	imgconv.BMP:  "image/bmp",
	imgconv.TIFF: "image/tiff",
}

// ClampSize keeps requested sizes in a range that scans reliably.
func ClampSize(size int) int {
	switch {
	case size <= 0:
		return DefaultSize
	case size < MinSize:
		return MinSize
	case size > MaxSize:
		return MaxSize
	}
	return size
}

// PNG encodes code as a PNG QR image.
func PNG(code string, size int) ([]byte, error) {
	return qrCode.Encode(code, qrCode.Medium, ClampSize(size))
}

// Render encodes code in the image format named by ext (png, jpg, gif, bmp, tif).
// It returns the encoded bytes and their content type.
func Render(code string, size int, ext string) ([]byte, string, error) {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" || ext == "png" {
		png, err := PNG(code, size)
		return png, contentTypes[imgconv.PNG], err
	}

	format, err := imgconv.FormatFromExtension(ext)
	if err != nil {
		return nil, "", err
	}
	contentType, ok := contentTypes[format]
	if !ok {
		return nil, "", fmt.Errorf("unsupported QR image format %q", ext)
	}

	qr, err := qrCode.New(code, qrCode.Medium)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	if err := imgconv.Write(&buf, qr.Image(ClampSize(size)), &imgconv.FormatOption{Format: format}); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), contentType, nil
}

// DataURL returns the PNG QR image as a data: URL for inline HTML.
func DataURL(code string, size int) (string, error) {
	png, err := PNG(code, size)
	if err != nil {
		return "", err
	}
	return dataurl.New(png, "image/png").String(), nil
}

// PrintTerminal draws code with half-block characters.
func PrintTerminal(w io.Writer, code string) {
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}
