package ca

import "bytes"

// CString returns the text of a NUL terminated (or NUL padded) field.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// putFixedString writes s into dst as a NUL terminated field of len(dst)
// bytes, truncating s so the terminator always fits.
func putFixedString(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// StringPayload returns s NUL terminated, ready for AppendMessage padding.
func StringPayload(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
