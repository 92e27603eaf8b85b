package clipboard

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLookupDefaults(t *testing.T) {
	c, standard := Lookup("", discard())
	if c.Name() != "ISO8859-1" || !standard {
		t.Errorf("empty name resolved to %q (standard=%v), want ISO8859-1 default", c.Name(), standard)
	}

	c, standard = Lookup("KOI8-R", discard())
	if c.Name() != "ISO8859-1" || !standard {
		t.Errorf("unknown name resolved to %q (standard=%v), want ISO8859-1 default", c.Name(), standard)
	}

	c, standard = Lookup("UTF-8", discard())
	if c.Name() != "UTF-8" || standard {
		t.Errorf("UTF-8 resolved to %q (standard=%v)", c.Name(), standard)
	}
}

func TestISO8859RoundTrip(t *testing.T) {
	c, _ := Lookup("ISO8859-1", discard())

	data, err := c.Encode("café")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{'c', 'a', 'f', 0xE9}) {
		t.Fatalf("encoded = %v", data)
	}

	text, err := c.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if text != "café" {
		t.Errorf("decoded = %q", text)
	}
}

func TestUTF16RoundTrip(t *testing.T) {
	c, _ := Lookup("UTF-16", discard())

	data, err := c.Encode("hié")
	if err != nil {
		t.Fatal(err)
	}
	// Little-endian code units, no BOM.
	want := []byte{'h', 0, 'i', 0, 0xE9, 0}
	if !bytes.Equal(data, want) {
		t.Fatalf("encoded = %v, want %v", data, want)
	}

	text, err := c.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if text != "hié" {
		t.Errorf("decoded = %q", text)
	}
}

func TestUTF8PassThrough(t *testing.T) {
	c, _ := Lookup("UTF-8", discard())

	in := "日本語"
	data, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != in {
		t.Fatalf("encoded = %q, want unchanged input", data)
	}

	text, err := c.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if text != in {
		t.Errorf("decoded = %q", text)
	}
}

func TestEncodeTruncatesOnRuneBoundary(t *testing.T) {
	c, _ := Lookup("UTF-8", discard())

	// A 3-byte rune straddling the limit must be dropped whole.
	in := strings.Repeat("a", MaxLength-1) + "日"
	data, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != MaxLength-1 {
		t.Errorf("truncated length = %d, want %d", len(data), MaxLength-1)
	}
	if data[len(data)-1] != 'a' {
		t.Errorf("last byte = %#x, want 'a'", data[len(data)-1])
	}
}

func TestUTF16EncodeTruncatesOnUnitBoundary(t *testing.T) {
	c, _ := Lookup("UTF-16", discard())

	data, err := c.Encode(strings.Repeat("a", MaxLength))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) > MaxLength {
		t.Errorf("encoded length = %d, exceeds limit %d", len(data), MaxLength)
	}
	if len(data)%2 != 0 {
		t.Errorf("encoded length = %d, not a whole number of code units", len(data))
	}
}

func TestClipboardResetAppendContents(t *testing.T) {
	cb := New()
	cb.Reset("text/plain")
	cb.Append([]byte("hello "))
	cb.Append([]byte("world"))

	mimetype, data := cb.Contents()
	if mimetype != "text/plain" {
		t.Errorf("mimetype = %q", mimetype)
	}
	if string(data) != "hello world" {
		t.Errorf("contents = %q", data)
	}

	cb.Reset("text/plain")
	if _, data := cb.Contents(); len(data) != 0 {
		t.Errorf("contents after reset = %q", data)
	}
}

func TestClipboardAppendCaps(t *testing.T) {
	cb := New()
	cb.Append(bytes.Repeat([]byte{'x'}, MaxLength-2))
	cb.Append([]byte("abcdef"))

	_, data := cb.Contents()
	if len(data) != MaxLength {
		t.Errorf("capped length = %d, want %d", len(data), MaxLength)
	}
	if string(data[MaxLength-2:]) != "ab" {
		t.Errorf("tail = %q, want %q", data[MaxLength-2:], "ab")
	}
}
