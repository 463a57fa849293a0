package xer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultEncoding is the character set export files are assumed to use.
const DefaultEncoding = "latin-1"

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// LookupEncoding resolves an encoding name such as "latin-1", "windows-1252"
// or "utf-8". Names are matched ignoring case, dashes and underscores.
func LookupEncoding(name string) (encoding.Encoding, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name))
	switch key {
	case "latin1", "iso88591", "l1":
		return charmap.ISO8859_1, nil
	case "windows1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso885915", "latin9":
		return charmap.ISO8859_15, nil
	case "utf8":
		// Invalid sequences decode to U+FFFD instead of failing the file.
		return unicode.UTF8, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// NewDecodingReader strips a leading UTF-8 byte order mark, if any, and
// decodes the rest of r from enc to UTF-8.
func NewDecodingReader(r io.Reader, enc encoding.Encoding) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bomUTF8)); err == nil && bytes.Equal(head, bomUTF8) {
		_, _ = br.Discard(len(bomUTF8))
		// A BOM means the producer wrote UTF-8 regardless of configuration.
		enc = unicode.UTF8
	}
	return transform.NewReader(br, enc.NewDecoder())
}
