package models

import "github.com/google/uuid"

// Role tags a message with its conversational origin.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation. Content and Parts are kept in
// sync: Content always equals the concatenated text parts. A message's
// ID is stable across edits; edits replace content, not identity.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Parts       []Part       `json:"parts,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment references externally stored file content. Owned by exactly
// one message, never shared.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
	Size        int64  `json:"size,omitempty"`
}

// Version is an archived (content, parts) snapshot of an assistant
// message, captured immediately before a regenerate overwrites it.
type Version struct {
	Content string `json:"content"`
	Parts   []Part `json:"parts,omitempty"`
}

// Upload describes a file stored by the upload collaborator. Transient;
// consumed to build attachments, never stored itself.
type Upload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
}

// NewID allocates an opaque unique identifier.
func NewID() string {
	return uuid.NewString()
}

// NewTextMessage builds a message whose content and parts are in sync.
func NewTextMessage(role Role, text string) Message {
	return Message{
		ID:      NewID(),
		Role:    role,
		Content: text,
		Parts:   []Part{TextPart(text)},
	}
}

// AttachmentsFromUploads converts upload descriptors into attachments.
func AttachmentsFromUploads(uploads []Upload) []Attachment {
	if len(uploads) == 0 {
		return nil
	}
	out := make([]Attachment, len(uploads))
	for i, u := range uploads {
		out[i] = Attachment{
			Name:        u.Name,
			ContentType: u.ContentType,
			URL:         u.URL,
			Size:        u.Size,
		}
	}
	return out
}

// CloneMessages deep-copies a message sequence, including parts and
// attachments, so the result can be mutated freely.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].Parts = CloneParts(m.Parts)
		if m.Attachments != nil {
			out[i].Attachments = append([]Attachment(nil), m.Attachments...)
		}
	}
	return out
}
