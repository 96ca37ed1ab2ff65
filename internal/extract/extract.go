// Package extract decodes uploaded bytes into text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrUnsupportedType is returned for files the extractor cannot read.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrDecode is returned when no configured encoding fits the bytes.
	ErrDecode = errors.New("could not decode text with any supported encoding")
	// ErrNoText is returned when decoding yields only whitespace.
	ErrNoText = errors.New("document contains no text")
)

// DefaultEncodings is the order encodings are tried in.
var DefaultEncodings = []string{"utf-8", "latin-1", "cp1252"}

// SupportedExtensions lists the extensions Extract reads, without the dot.
var SupportedExtensions = []string{"txt"}

// Text is decoded document content.
type Text struct {
	Content  string
	Encoding string
}

type decoder struct {
	name string
	cm   *charmap.Charmap
}

// Extractor decodes text files trying each configured encoding in turn.
// It holds no per-call state and is safe for concurrent use.
type Extractor struct {
	decoders []decoder
}

// New returns an Extractor for the named encodings. An empty list means
// DefaultEncodings.
func New(encodings []string) (*Extractor, error) {
	if len(encodings) == 0 {
		encodings = DefaultEncodings
	}
	e := &Extractor{}
	for _, name := range encodings {
		d, err := lookup(name)
		if err != nil {
			return nil, err
		}
		e.decoders = append(e.decoders, d)
	}
	return e, nil
}

func lookup(name string) (decoder, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "utf-8", "utf8":
		return decoder{name: "utf-8"}, nil
	case "latin-1", "latin1", "iso-8859-1":
		return decoder{name: "latin-1", cm: charmap.ISO8859_1}, nil
	case "cp1252", "windows-1252":
		return decoder{name: "cp1252", cm: charmap.Windows1252}, nil
	}
	return decoder{}, fmt.Errorf("unknown encoding %q", name)
}

// Supported reports whether filename has an extension Extract reads.
func Supported(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Extract decodes raw as the first encoding that fits. A legacy decoding
// that produces C1 control characters only counts when no other encoding
// fits; the first such decoding is then used. Errors wrap
// ErrUnsupportedType, ErrDecode or ErrNoText.
func (e *Extractor) Extract(raw []byte, filename string) (*Text, error) {
	if !Supported(filename) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename))
	}
	var fallback *Text
	for _, d := range e.decoders {
		content, clean, ok := d.decode(raw)
		if !ok {
			continue
		}
		if !clean {
			if fallback == nil {
				fallback = &Text{Content: content, Encoding: d.name}
			}
			continue
		}
		return checkText(&Text{Content: content, Encoding: d.name})
	}
	if fallback != nil {
		return checkText(fallback)
	}
	return nil, ErrDecode
}

func checkText(t *Text) (*Text, error) {
	if strings.TrimSpace(t.Content) == "" {
		return nil, ErrNoText
	}
	return t, nil
}

// decode reports whether raw decodes at all (ok) and whether the result is
// free of C1 control characters (clean).
func (d decoder) decode(raw []byte) (content string, clean, ok bool) {
	if d.cm == nil {
		if !utf8.Valid(raw) {
			return "", false, false
		}
		return string(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))), true, true
	}
	return decodeLegacy(d.cm.NewDecoder(), raw)
}

// decodeLegacy rejects output containing replacement runes and flags output
// containing C1 control characters: single-byte code pages map every byte
// somewhere, so those are the only sign the bytes were not written in this
// encoding.
func decodeLegacy(dec *encoding.Decoder, raw []byte) (content string, clean, ok bool) {
	out, err := dec.Bytes(raw)
	if err != nil {
		return "", false, false
	}
	s := string(out)
	clean = true
	for _, r := range s {
		if r == utf8.RuneError {
			return "", false, false
		}
		if r >= 0x80 && r <= 0x9f {
			clean = false
		}
	}
	return s, clean, true
}
