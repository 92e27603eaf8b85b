// Package clipboard converts clipboard text between the session's
// canonical UTF-8 form and the encoding the remote server exchanges,
// and holds the session clipboard state broadcast to viewers.
package clipboard

import (
	"log/slog"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// MaxLength caps the clipboard payload in either direction, in bytes.
const MaxLength = 262144

// Codec converts between external clipboard bytes and UTF-8 text. A
// nil transform means UTF-8 pass-through.
type Codec struct {
	name string
	enc  encoding.Encoding
}

// Name returns the codec's configured encoding name.
func (c Codec) Name() string { return c.name }

var codecs = map[string]Codec{
	"ISO8859-1": {name: "ISO8859-1", enc: charmap.ISO8859_1},
	"UTF-8":     {name: "UTF-8"},
	"UTF-16":    {name: "UTF-16", enc: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
	"CP1252":    {name: "CP1252", enc: charmap.Windows1252},
}

// Lookup resolves an encoding name to its codec. The empty name selects
// the ISO8859-1 default silently; an unrecognized name selects the same
// default with a warning and never fails. The second return reports
// whether the chosen encoding is the one the protocol standard
// mandates (ISO8859-1).
func Lookup(name string, logger *slog.Logger) (Codec, bool) {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		return codecs["ISO8859-1"], true
	}
	if c, ok := codecs[name]; ok {
		return c, c.name == "ISO8859-1"
	}
	logger.Warn("invalid clipboard encoding, defaulting to ISO8859-1", "encoding", name)
	return codecs["ISO8859-1"], true
}

// Decode converts external clipboard bytes to UTF-8 text, truncated at
// the last complete rune that fits within MaxLength.
func (c Codec) Decode(data []byte) (string, error) {
	if c.enc != nil {
		out, err := c.enc.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		data = out
	}
	return truncateUTF8(data, MaxLength), nil
}

// Encode converts UTF-8 text to external clipboard bytes, truncated at
// the last complete unit that fits within MaxLength.
func (c Codec) Encode(text string) ([]byte, error) {
	text = truncateUTF8([]byte(text), MaxLength)
	if c.enc == nil {
		return []byte(text), nil
	}
	out, err := c.enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxLength {
		// 8-bit codecs are one byte per rune and already fit; UTF-16
		// units are two bytes, so cut on an even boundary.
		out = out[:MaxLength&^1]
	}
	return out, nil
}

// truncateUTF8 cuts b to at most limit bytes without splitting a rune.
func truncateUTF8(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	b = b[:limit]
	for len(b) > 0 && !utf8.RuneStart(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	if len(b) > 0 {
		if r, size := utf8.DecodeLastRune(b); r == utf8.RuneError && size <= 1 {
			b = b[:len(b)-1]
		}
	}
	return string(b)
}
