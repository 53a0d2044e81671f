package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PartType tags the concrete variant of a [ContentPart].
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartDocument   PartType = "document"
	PartCode       PartType = "code"
	PartToolUse    PartType = "tool_use"
	PartToolResult PartType = "tool_result"
)

// ContentPart is one element of a message's content sequence. The concrete
// types are [TextPart], [ImagePart], [DocumentPart], [CodePart],
// [ToolUsePart], and [ToolResultPart]; code that consumes parts switches on
// the concrete type rather than on strings.
type ContentPart interface {
	// Type returns the variant tag used on the wire.
	Type() PartType
	// Validate checks the part's structural invariants.
	Validate() error
}

// imageMIMETypes is the closed set of accepted image formats.
var imageMIMETypes = map[string]bool{
	"image/jpeg":    true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,
}

// documentMIMETypes is the set of accepted document formats.
var documentMIMETypes = map[string]bool{
	"application/pdf":  true,
	"application/json": true,
	"text/plain":       true,
	"text/markdown":    true,
	"text/csv":         true,
	"text/html":        true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// TextPart is plain text content.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) Type() PartType { return PartText }

func (p TextPart) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("text part must not be empty or whitespace-only")
	}
	return nil
}

// ImagePart is base64-encoded image content.
type ImagePart struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
	Alt      string `json:"alt,omitempty"`
}

func (ImagePart) Type() PartType { return PartImage }

func (p ImagePart) Validate() error {
	if p.Data == "" {
		return fmt.Errorf("image part must carry base64 data")
	}
	if !imageMIMETypes[p.MIMEType] {
		return fmt.Errorf("unsupported image mime type %q", p.MIMEType)
	}
	return nil
}

// DocumentPart is base64-encoded document content.
type DocumentPart struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
	Name     string `json:"name,omitempty"`
}

func (DocumentPart) Type() PartType { return PartDocument }

func (p DocumentPart) Validate() error {
	if p.Data == "" {
		return fmt.Errorf("document part must carry base64 data")
	}
	if !documentMIMETypes[p.MIMEType] {
		return fmt.Errorf("unsupported document mime type %q", p.MIMEType)
	}
	return nil
}

// CodePart is source code content with optional language and filename hints.
type CodePart struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Filename string `json:"filename,omitempty"`
}

func (CodePart) Type() PartType { return PartCode }

func (p CodePart) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("code part must not be empty or whitespace-only")
	}
	return nil
}

// ToolUsePart is a tool invocation requested by the model.
type ToolUsePart struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

func (ToolUsePart) Type() PartType { return PartToolUse }

func (p ToolUsePart) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("tool use part must carry a call id")
	}
	if p.Name == "" {
		return fmt.Errorf("tool use part must carry a tool name")
	}
	return nil
}

// ToolError describes a failed tool execution inside a [ToolResultPart].
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToolResultPart surfaces a tool execution outcome back to the model.
type ToolResultPart struct {
	CallID  string     `json:"callId"`
	Success bool       `json:"success"`
	Output  any        `json:"output,omitempty"`
	Error   *ToolError `json:"error,omitempty"`
}

func (ToolResultPart) Type() PartType { return PartToolResult }

func (p ToolResultPart) Validate() error {
	if p.CallID == "" {
		return fmt.Errorf("tool result part must reference a call id")
	}
	if !p.Success && p.Error == nil {
		return fmt.Errorf("failed tool result must carry an error")
	}
	return nil
}

// taggedPart is the wire envelope for a content part: the variant's own
// fields plus a "type" discriminator.
type taggedPart struct {
	Type PartType `json:"type"`

	// text / code
	Text     string `json:"text,omitempty"`
	Language string `json:"language,omitempty"`
	Filename string `json:"filename,omitempty"`

	// image / document
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Alt      string `json:"alt,omitempty"`
	Name     string `json:"name,omitempty"`

	// tool use / tool result
	ID      string          `json:"id,omitempty"`
	Input   map[string]any  `json:"input,omitempty"`
	CallID  string          `json:"callId,omitempty"`
	Success *bool           `json:"success,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   *ToolError      `json:"error,omitempty"`
}

// MarshalJSON emits the message with tagged content parts.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role     Role           `json:"role"`
		Content  []any          `json:"content"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}
	out := alias{Role: m.Role, Metadata: m.Metadata, Content: make([]any, 0, len(m.Content))}
	for _, part := range m.Content {
		tagged, err := tagPart(part)
		if err != nil {
			return nil, err
		}
		out.Content = append(out.Content, tagged)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes tagged content parts back into their concrete types.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role     Role              `json:"role"`
		Content  []json.RawMessage `json:"content"`
		Metadata map[string]any    `json:"metadata,omitempty"`
	}
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Metadata = raw.Metadata
	m.Content = m.Content[:0]
	for _, rawPart := range raw.Content {
		part, err := UnmarshalPart(rawPart)
		if err != nil {
			return err
		}
		m.Content = append(m.Content, part)
	}
	return nil
}

// tagPart wraps a concrete part into its wire envelope.
func tagPart(part ContentPart) (taggedPart, error) {
	switch p := part.(type) {
	case TextPart:
		return taggedPart{Type: PartText, Text: p.Text}, nil
	case CodePart:
		return taggedPart{Type: PartCode, Text: p.Text, Language: p.Language, Filename: p.Filename}, nil
	case ImagePart:
		return taggedPart{Type: PartImage, Data: p.Data, MIMEType: p.MIMEType, Alt: p.Alt}, nil
	case DocumentPart:
		return taggedPart{Type: PartDocument, Data: p.Data, MIMEType: p.MIMEType, Name: p.Name}, nil
	case ToolUsePart:
		return taggedPart{Type: PartToolUse, ID: p.ID, Name: p.Name, Input: p.Input}, nil
	case ToolResultPart:
		output, err := json.Marshal(p.Output)
		if err != nil {
			return taggedPart{}, fmt.Errorf("marshal tool result output: %w", err)
		}
		if string(output) == "null" {
			output = nil
		}
		success := p.Success
		return taggedPart{Type: PartToolResult, CallID: p.CallID, Success: &success, Output: output, Error: p.Error}, nil
	default:
		return taggedPart{}, fmt.Errorf("unknown content part type %T", part)
	}
}

// UnmarshalPart decodes one tagged content part.
func UnmarshalPart(data []byte) (ContentPart, error) {
	var raw taggedPart
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode content part: %w", err)
	}
	switch raw.Type {
	case PartText:
		return TextPart{Text: raw.Text}, nil
	case PartCode:
		return CodePart{Text: raw.Text, Language: raw.Language, Filename: raw.Filename}, nil
	case PartImage:
		return ImagePart{Data: raw.Data, MIMEType: raw.MIMEType, Alt: raw.Alt}, nil
	case PartDocument:
		return DocumentPart{Data: raw.Data, MIMEType: raw.MIMEType, Name: raw.Name}, nil
	case PartToolUse:
		return ToolUsePart{ID: raw.ID, Name: raw.Name, Input: raw.Input}, nil
	case PartToolResult:
		part := ToolResultPart{CallID: raw.CallID, Error: raw.Error}
		if raw.Success != nil {
			part.Success = *raw.Success
		}
		if len(raw.Output) > 0 {
			var output any
			if err := json.Unmarshal(raw.Output, &output); err != nil {
				return nil, fmt.Errorf("decode tool result output: %w", err)
			}
			part.Output = output
		}
		return part, nil
	default:
		return nil, fmt.Errorf("unknown content part type %q", raw.Type)
	}
}
