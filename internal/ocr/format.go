package ocr

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// Format is the container detected from magic bytes.
type Format string

const (
	FormatUnknown Format = ""
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
	FormatPDF     Format = "pdf"
	FormatHEIC    Format = "heic"
)

var (
	magicPNG  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	magicJPEG = []byte{0xff, 0xd8, 0xff}
	magicPDF  = []byte("%PDF-")
)

// Sniff detects the payload format. Content types supplied by clients are
// not trusted here.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, magicPNG):
		return FormatPNG
	case bytes.HasPrefix(data, magicJPEG):
		return FormatJPEG
	case bytes.HasPrefix(data, magicPDF):
		return FormatPDF
	case isHEIC(data):
		return FormatHEIC
	default:
		return FormatUnknown
	}
}

// HEIC files carry an ftyp box at offset 4 with a heic/heif brand.
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// rasterizePDF renders the first page; receipts are single page in practice.
func rasterizePDF(data []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("render pdf page: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeHEIC(data []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode heic: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
