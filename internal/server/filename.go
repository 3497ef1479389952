package server

import (
	"fmt"
	"strings"
)

// unsafeFilenameChars are replaced with '_' in download file names
const unsafeFilenameChars = `<>:"/\|?*`

// downloadFilename returns "NN - Title.mp3" with filesystem-hostile
// characters in the title replaced.
func downloadFilename(trackNumber int, title string) string {
	safeTitle := strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeFilenameChars, r) {
			return '_'
		}
		return r
	}, title)
	return fmt.Sprintf("%02d - %s.mp3", trackNumber, safeTitle)
}

// fallbackFilename is the name suggested for a direct, untagged download
func fallbackFilename(trackNumber int, title string) string {
	return fmt.Sprintf("%02d - %s.mp3", trackNumber, title)
}

// contentDisposition builds the attachment header value for filename
func contentDisposition(filename string) string {
	return `attachment; filename="` + encodeURIComponent(filename) + `"`
}

// encodeURIComponent percent-encodes every byte of s's UTF-8 form except
// A-Z a-z 0-9 and - _ . ! ~ * ' ( ), matching the browser function of the
// same name.
func encodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func isURIUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
