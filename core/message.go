package core

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Video references video input either as a single URL or as an ordered
// list of frame image URLs. Exactly one of the two forms is set; the JSON
// representation is the bare string or the bare array, not an object.
type Video struct {
	URL    string
	Frames []string
}

// MarshalJSON emits the URL string or the frame array.
func (v Video) MarshalJSON() ([]byte, error) {
	if v.Frames != nil {
		return json.Marshal(v.Frames)
	}
	return json.Marshal(v.URL)
}

// UnmarshalJSON accepts either form.
func (v *Video) UnmarshalJSON(data []byte) error {
	var url string
	if err := json.Unmarshal(data, &url); err == nil {
		v.URL = url
		v.Frames = nil
		return nil
	}
	var frames []string
	if err := json.Unmarshal(data, &frames); err == nil {
		v.URL = ""
		v.Frames = frames
		return nil
	}
	return fmt.Errorf("video must be a URL string or a list of frame URLs: %w", ErrInvalidInput)
}

// Message is a user-submitted request. All fields are optional; role
// defaults to "user" when empty. Context carries prior turns in order,
// oldest first, each of the same shape.
type Message struct {
	Role    Role      `json:"role,omitempty"`
	Text    string    `json:"text,omitempty"`
	Images  []string  `json:"images,omitempty"`
	Videos  []Video   `json:"videos,omitempty"`
	Context []Message `json:"context,omitempty"`
}

// IsMultimodal reports whether the message carries image or video input.
// Only the message itself is inspected, not its context.
func (m Message) IsMultimodal() bool {
	return len(m.Images) > 0 || len(m.Videos) > 0
}

// EffectiveRole returns the role, defaulting to user.
func (m Message) EffectiveRole() Role {
	if m.Role == "" {
		return RoleUser
	}
	return m.Role
}
