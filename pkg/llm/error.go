// Package llm provides the wire representations of the OpenAI-compatible
// completion API served by solo: requests, generation options, and the
// response envelopes built from engine output.
package llm

// ErrorResponse represents an error returned to API clients.
type ErrorResponse struct {
	Error string `json:"error"`
}
