package content

import (
	"strings"
	"testing"
)

func TestNormalizePassthrough(t *testing.T) {
	items := []Item{Text("a"), Text("b")}
	got := Normalize(items)
	if len(got) != 2 || got[0].Text != "a" {
		t.Errorf("expected passthrough of item list, got %+v", got)
	}

	single := Normalize(Text("only"))
	if len(single) != 1 || single[0].Text != "only" {
		t.Errorf("expected single item wrapped, got %+v", single)
	}
}

func TestNormalizePlainString(t *testing.T) {
	got := Normalize("hello world")
	if len(got) != 1 {
		t.Fatalf("expected one item, got %d", len(got))
	}
	if got[0].Type != TypeText || got[0].Text != "hello world" {
		t.Errorf("expected text item, got %+v", got[0])
	}
}

func TestNormalizeDataURI(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		mime string
	}{
		{"png", "data:image/png;base64,iVBORw0KGgo=", "image/png"},
		{"jpeg", "data:image/jpeg;base64,/9j/4AAQ", "image/jpeg"},
		{"gif", "data:image/gif;base64,R0lGODlh", "image/gif"},
		{"webp", "data:image/webp;base64,UklGRg==", "image/webp"},
		{"svg", "data:image/svg+xml;base64,PHN2Zz4=", "image/svg+xml"},
		{"unknown subtype", "data:image/bmp;base64,Qk0=", "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.uri)
			if len(got) != 1 || got[0].Type != TypeImage {
				t.Fatalf("expected image item, got %+v", got)
			}
			if got[0].MimeType != tt.mime {
				t.Errorf("expected mime %q, got %q", tt.mime, got[0].MimeType)
			}
			if strings.Contains(got[0].Data, "base64,") {
				t.Errorf("data URI header not stripped: %q", got[0].Data)
			}
		})
	}
}

func TestNormalizeBareBase64Run(t *testing.T) {
	long := strings.Repeat("iVBORw0KGgoAAAANSUhEUg", 5) // >100 base64 chars
	got := Normalize(long)
	if len(got) != 1 || got[0].Type != TypeImage {
		t.Fatalf("expected image item for long base64 run, got %+v", got)
	}
	if got[0].MimeType != "image/png" {
		t.Errorf("expected default png mime, got %q", got[0].MimeType)
	}

	// Too short: stays text.
	short := Normalize("iVBORw0KGgo=")
	if short[0].Type != TypeText {
		t.Errorf("short base64 string should stay text, got %+v", short[0])
	}

	// Long but not base64-shaped: stays text.
	sentence := strings.Repeat("the quick brown fox ", 10)
	if got := Normalize(sentence); got[0].Type != TypeText {
		t.Errorf("long sentence should stay text, got %+v", got[0])
	}
}

func TestNormalizeArbitraryValue(t *testing.T) {
	got := Normalize(map[string]any{"visible": true, "count": 3})
	if len(got) != 1 || got[0].Type != TypeText {
		t.Fatalf("expected JSON text item, got %+v", got)
	}
	if !strings.Contains(got[0].Text, `"visible":true`) {
		t.Errorf("expected JSON serialization, got %q", got[0].Text)
	}

	if got := Normalize(nil); len(got) != 0 {
		t.Errorf("expected empty list for nil, got %+v", got)
	}
}
