package constants

import "strings"

// MaxUploadBytes caps the payload accepted at the upload boundary.
const MaxUploadBytes = 25 << 20

// MaxErrorMessageLen bounds processing_jobs.error_message.
const MaxErrorMessageLen = 1024

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimePDF  = "application/pdf"
	MimeHEIC = "image/heic"
)

// AllowedMimeTypes holds the content types accepted for upload.
var AllowedMimeTypes = map[string]struct{}{
	MimeJPEG: {},
	MimePNG:  {},
	MimePDF:  {},
}

// NormalizeMime lowercases a content type and drops parameters ("; charset=...").
func NormalizeMime(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// MimeFromExt maps a file extension to a content type; "" if unknown.
func MimeFromExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return MimeJPEG
	case "png":
		return MimePNG
	case "pdf":
		return MimePDF
	case "heic", "heif":
		return MimeHEIC
	}
	return ""
}
