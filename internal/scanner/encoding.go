package scanner

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ErrFileTooLarge is returned by ReadFile for files over the limit.
var ErrFileTooLarge = errors.New("file exceeds size limit")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadFile reads a source file as text, decoding with a fallback chain:
// UTF-8 (BOM stripped), UTF-16 (by BOM), windows-1252, latin-1, and
// finally raw bytes with invalid sequences replaced. Files larger than
// maxSize are rejected with ErrFileTooLarge.
func ReadFile(path string, maxSize int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if maxSize > 0 && info.Size() > maxSize {
		return "", ErrFileTooLarge
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return DecodeText(data), nil
}

// DecodeText converts raw file bytes to a string using the fallback
// chain described on ReadFile.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)

	// UTF-16 BOMs mark the rare editor-saved files.
	if len(data) >= 2 && (data[0] == 0xFF && data[1] == 0xFE || data[0] == 0xFE && data[1] == 0xFF) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		if decoded, err := dec.Bytes(data); err == nil {
			return string(decoded)
		}
	}

	if utf8.Valid(data) {
		return string(data)
	}

	if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
		return string(decoded)
	}
	if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
		return string(decoded)
	}

	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}

// CountLines returns the number of lines in content, counting a
// trailing unterminated line.
func CountLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}
