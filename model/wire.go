// Wire types for the OpenAI-compatible chat completions API.
package model

import (
	"github.com/itsneelabh/infergate/core"
)

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatMessage carries either a plain string or a part list as content.
type chatMessage struct {
	Role    core.Role   `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string   `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL *urlRef  `json:"image_url,omitempty"`
	VideoURL *urlRef  `json:"video_url,omitempty"`
	Video    []string `json:"video,omitempty"`
}

type urlRef struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role             string `json:"role"`
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *core.Usage `json:"usage"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *core.Usage `json:"usage"`
}

// buildMessages flattens a gateway message into the upstream chat turn
// list: context turns in order, oldest first, then the message itself.
func buildMessages(message *core.Message) []chatMessage {
	if message == nil {
		return nil
	}
	out := make([]chatMessage, 0, len(message.Context)+1)
	for _, turn := range message.Context {
		out = append(out, convertMessage(&turn))
	}
	return append(out, convertMessage(message))
}

// convertMessage maps one turn. Text-only turns use the plain string
// form; turns carrying media use the part-list form with the text (if
// any) first, then image parts, then video parts. A single video URL
// becomes a video_url part, a frame list becomes a video part.
func convertMessage(m *core.Message) chatMessage {
	msg := chatMessage{Role: m.EffectiveRole()}

	if !m.IsMultimodal() {
		msg.Content = m.Text
		return msg
	}

	parts := make([]contentPart, 0, 1+len(m.Images)+len(m.Videos))
	if m.Text != "" {
		parts = append(parts, contentPart{Type: "text", Text: m.Text})
	}
	for _, url := range m.Images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &urlRef{URL: url}})
	}
	for _, video := range m.Videos {
		if video.Frames != nil {
			parts = append(parts, contentPart{Type: "video", Video: video.Frames})
		} else {
			parts = append(parts, contentPart{Type: "video_url", VideoURL: &urlRef{URL: video.URL}})
		}
	}
	msg.Content = parts
	return msg
}
