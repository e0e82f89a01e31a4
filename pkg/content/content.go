// Package content defines the content-item union carried in tool results and
// the normalizer that coerces loose handler return values into it.
package content

// Type discriminates the content-item union.
type Type string

const (
	// TypeText is plain text content.
	TypeText Type = "text"
	// TypeImage is base64-encoded image data with a mime type.
	TypeImage Type = "image"
	// TypeResource references external content by URI.
	TypeResource Type = "resource"
)

// Item is one element of a tool result payload.
type Item struct {
	Type Type `json:"type"`

	// Text is set for text items and optionally for resources.
	Text string `json:"text,omitempty"`

	// Data is base64-encoded payload for image items.
	Data string `json:"data,omitempty"`

	// MimeType qualifies image and resource items.
	MimeType string `json:"mimeType,omitempty"`

	// URI identifies resource items.
	URI string `json:"uri,omitempty"`

	// Blob is base64-encoded payload for binary resources.
	Blob string `json:"blob,omitempty"`
}

// Text builds a text item.
func Text(s string) Item {
	return Item{Type: TypeText, Text: s}
}

// Image builds an image item from base64 data and a mime type.
func Image(data, mimeType string) Item {
	return Item{Type: TypeImage, Data: data, MimeType: mimeType}
}

// Resource builds a resource item.
func Resource(uri, mimeType, text string) Item {
	return Item{Type: TypeResource, URI: uri, MimeType: mimeType, Text: text}
}

// ToolResult is the payload of a tools/call response. Failed calls set
// IsError and carry the protocol error code alongside a text description.
type ToolResult struct {
	Content   []Item `json:"content"`
	IsError   bool   `json:"isError"`
	ErrorCode int64  `json:"errorCode,omitempty"`
}
