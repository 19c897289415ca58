package llm

import (
	"context"
	"time"

	"github.com/BaSui01/drama/prompt"
)

// Job is one inference request. Exactly one of Prompt or Messages is set.
type Job struct {
	ID            string
	Prompt        string
	Messages      []prompt.Turn
	Preset        string
	ChatID        string
	SituationID   string
	InteractionID string
	ModelConfig   ModelConfig
}

// Response is the reassembled backend answer.
type Response struct {
	ID           string        `json:"id"`
	Text         string        `json:"response"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Duration     time.Duration `json:"-"`
}

// Backend submits jobs to an inference service.
type Backend interface {
	Submit(ctx context.Context, job *Job) (*Response, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, job *Job) (*Response, error)

func (f BackendFunc) Submit(ctx context.Context, job *Job) (*Response, error) {
	return f(ctx, job)
}

// requestPayload is the wire body: the flattened model configuration plus
// the job routing fields.
type requestPayload struct {
	ModelConfig
	Prompt        string        `json:"prompt,omitempty"`
	Messages      []prompt.Turn `json:"messages,omitempty"`
	Preset        string        `json:"preset,omitempty"`
	ChatID        string        `json:"chat_id,omitempty"`
	SituationID   string        `json:"situation_id,omitempty"`
	InteractionID string        `json:"interaction_id,omitempty"`
}

func newPayload(job *Job) requestPayload {
	return requestPayload{
		ModelConfig:   job.ModelConfig,
		Prompt:        job.Prompt,
		Messages:      job.Messages,
		Preset:        job.Preset,
		ChatID:        job.ChatID,
		SituationID:   job.SituationID,
		InteractionID: job.InteractionID,
	}
}

// wireResponse accepts both the native {id, response} shape and the
// OpenAI-compatible choices/usage shape.
type wireResponse struct {
	ID       string `json:"id"`
	Response string `json:"response"`
	Choices  []struct {
		Text    string `json:"text"`
		Message *struct {
			Content string `json:"content"`
		} `json:"message,omitempty"`
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// text returns the generated text of a complete response.
func (w *wireResponse) text() string {
	if w.Response != "" {
		return w.Response
	}
	if len(w.Choices) == 0 {
		return ""
	}
	c := w.Choices[0]
	switch {
	case c.Text != "":
		return c.Text
	case c.Message != nil:
		return c.Message.Content
	default:
		return ""
	}
}

// delta returns the incremental text of a stream chunk.
func (w *wireResponse) delta() string {
	if len(w.Choices) == 0 {
		return w.Response
	}
	c := w.Choices[0]
	if c.Delta != nil && c.Delta.Content != "" {
		return c.Delta.Content
	}
	return c.Text
}

func (w *wireResponse) toResponse(text string) *Response {
	resp := &Response{
		ID:           w.ID,
		Text:         text,
		InputTokens:  w.InputTokens,
		OutputTokens: w.OutputTokens,
	}
	if w.Usage != nil {
		resp.InputTokens = w.Usage.PromptTokens
		resp.OutputTokens = w.Usage.CompletionTokens
	}
	return resp
}
