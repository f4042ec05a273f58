package llm

import "time"

// Object names reported in the envelope.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	ObjectTextCompletion      = "text_completion"
)

// FinishStop is the finish reason of a terminal chunk or aggregate.
const FinishStop = "stop"

// DoneSentinel is the literal end-of-stream marker sent after the terminal chunk.
const DoneSentinel = "[DONE]"

// Response is both the streaming chunk and the aggregate object. Which
// choice fields are populated depends on the builder that produced it.
type Response struct {
	ID       string   `json:"id"`
	Object   string   `json:"object"`
	Created  int64    `json:"created"`
	Response string   `json:"response"` // Running text while streaming, final text otherwise
	Model    string   `json:"model"`
	Choices  []Choice `json:"choices"`
}

// Choice is the single generated alternative. Index is always 0.
type Choice struct {
	Index        int      `json:"index"`
	Delta        *Delta   `json:"delta,omitempty"`
	Message      *Message `json:"message,omitempty"`
	Text         *string  `json:"text,omitempty"`
	FinishReason *string  `json:"finish_reason"`
}

// Delta carries the incremental content of a chat chunk. The terminal chunk
// carries an empty Delta, which encodes as {}.
type Delta struct {
	Content *string `json:"content,omitempty"`
}

// Envelope builds response objects for one request. It holds the fields
// shared by every chunk of a stream.
type Envelope struct {
	ID      string
	Model   string
	Created int64
}

// NewEnvelope returns an Envelope stamped with the given creation time.
func NewEnvelope(id, model string, created time.Time) Envelope {
	return Envelope{ID: id, Model: model, Created: created.Unix()}
}

// ChatChunk wraps one engine step of a streaming chat completion.
func (e Envelope) ChatChunk(full, delta string) *Response {
	return e.build(ObjectChatCompletionChunk, full, Choice{Delta: &Delta{Content: &delta}})
}

// ChatStop is the terminal chunk of a streaming chat completion.
func (e Envelope) ChatStop(full string) *Response {
	return e.build(ObjectChatCompletionChunk, full, Choice{Delta: &Delta{}, FinishReason: stop()})
}

// ChatCompletion is the aggregate chat response.
func (e Envelope) ChatCompletion(full string) *Response {
	return e.build(ObjectChatCompletion, full, Choice{
		Message:      &Message{Role: RoleAssistant, Content: full},
		FinishReason: stop(),
	})
}

// CompletionChunk wraps one engine step of a streaming raw completion.
func (e Envelope) CompletionChunk(full, delta string) *Response {
	return e.build(ObjectTextCompletion, full, Choice{Text: &delta})
}

// CompletionStop is the terminal chunk of a streaming raw completion.
func (e Envelope) CompletionStop(full string) *Response {
	empty := ""
	return e.build(ObjectTextCompletion, full, Choice{Text: &empty, FinishReason: stop()})
}

// Completion is the aggregate raw completion response.
func (e Envelope) Completion(full string) *Response {
	return e.build(ObjectTextCompletion, full, Choice{Text: &full, FinishReason: stop()})
}

func (e Envelope) build(object, full string, choice Choice) *Response {
	return &Response{
		ID:       e.ID,
		Object:   object,
		Created:  e.Created,
		Response: full,
		Model:    e.Model,
		Choices:  []Choice{choice},
	}
}

func stop() *string {
	s := FinishStop
	return &s
}
