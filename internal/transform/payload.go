package transform

import (
	"bytes"

	"github.com/disintegration/imaging"
)

// DetectImageFormat inspects the raw bytes and returns the image format:
// "jpeg", "png", "gif", "webp", or "" if unknown.
func DetectImageFormat(data []byte) string {
	// JPEG: starts with FF D8 FF
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "jpeg"
	}
	// PNG: starts with 89 50 4E 47 0D 0A 1A 0A
	if len(data) >= 8 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 &&
		data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A {
		return "png"
	}
	// GIF: starts with GIF87a or GIF89a
	if len(data) >= 6 && data[0] == 'G' && data[1] == 'I' && data[2] == 'F' {
		return "gif"
	}
	// WebP: starts with RIFF....WEBP
	if len(data) >= 12 && data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return "webp"
	}
	return ""
}

// DecodesAsImage verifies that data is a complete, decodable image rather
// than a truncated or mislabelled payload.
func DecodesAsImage(data []byte) bool {
	_, err := imaging.Decode(bytes.NewReader(data))
	return err == nil
}

// LooksLikeJSON reports whether data starts like a JSON document.
func LooksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// LooksLikeMarkup reports whether data appears to be an HTML/XML error page
// rather than media or JSON.
func LooksLikeMarkup(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return false
	}
	if trimmed[0] != '<' {
		return false
	}
	lower := bytes.ToLower(trimmed)
	return bytes.HasPrefix(lower, []byte("<!doctype")) ||
		bytes.HasPrefix(lower, []byte("<html")) ||
		bytes.HasPrefix(lower, []byte("<?xml")) ||
		bytes.Contains(lower, []byte("<body"))
}
