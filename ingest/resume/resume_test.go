package resume

import (
	"strings"
	"testing"
)

func TestExtractTextPlainUTF8(t *testing.T) {
	got, err := NewExtractor().ExtractText([]byte("  Senior Go Engineer\nBerlin\n"))
	if err != nil {
		t.Fatalf("ExtractText() error: %v", err)
	}
	if got != "Senior Go Engineer\nBerlin" {
		t.Errorf("text = %q, want trimmed content", got)
	}
}

func TestExtractTextEmpty(t *testing.T) {
	if _, err := NewExtractor().ExtractText(nil); err == nil {
		t.Fatal("empty input accepted")
	}
}

func TestExtractTextBinaryGarbage(t *testing.T) {
	_, err := NewExtractor().ExtractText([]byte{0xff, 0xfe, 0x00, 0x80, 0x81})
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("error = %v, want unsupported format", err)
	}
}

func TestExtractTextMalformedPDF(t *testing.T) {
	// A PDF header with no valid structure behind it must error, not panic.
	if _, err := NewExtractor().ExtractText([]byte("%PDF-1.7 garbage")); err == nil {
		t.Fatal("malformed pdf accepted")
	}
}
