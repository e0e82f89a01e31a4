package content

import (
	"encoding/json"
	"fmt"
	"strings"
)

// minBase64Run is the minimum length for a bare string to be treated as
// base64 image data rather than text.
const minBase64Run = 100

// Normalize coerces a handler return value into a content-item list:
// item lists and single items pass through, strings go through the image
// heuristic, and everything else is JSON-serialized into a text item.
func Normalize(v any) []Item {
	switch val := v.(type) {
	case nil:
		return []Item{}
	case []Item:
		return val
	case Item:
		return []Item{val}
	case string:
		return []Item{normalizeString(val)}
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return []Item{Text(fmt.Sprintf("%v", val))}
		}
		return []Item{Text(string(data))}
	}
}

// normalizeString applies the image heuristic: data:image/* URIs and long
// base64 runs become image items, anything else is text.
func normalizeString(s string) Item {
	if strings.HasPrefix(s, "data:image/") {
		mimeType := mimeFromDataURI(s)
		payload := s
		if idx := strings.Index(s, ","); idx >= 0 {
			payload = s[idx+1:]
		}
		return Image(payload, mimeType)
	}
	if len(s) >= minBase64Run && isBase64Shaped(s) {
		return Image(s, "image/png")
	}
	return Text(s)
}

// mimeFromDataURI infers the mime type from a data:image/* prefix.
// Defaults to image/png for unrecognized subtypes.
func mimeFromDataURI(s string) string {
	for _, mt := range []string{"image/jpeg", "image/gif", "image/webp", "image/svg+xml"} {
		if strings.HasPrefix(s, "data:"+mt) {
			return mt
		}
	}
	return "image/png"
}

// isBase64Shaped reports whether the string contains only base64 alphabet
// characters. Padding may appear anywhere since this is a heuristic, not a
// decoder.
func isBase64Shaped(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '+', c == '/', c == '=':
		default:
			return false
		}
	}
	return true
}
