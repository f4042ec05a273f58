package llm

import "fmt"

// Options contains engine generation parameters. Every field is optional so
// that a request only overrides what it sets.
type Options struct {
	MaxTokens        *int     `json:"max_tokens,omitempty" toml:"max_tokens" yaml:"max_tokens"`
	Temperature      *float64 `json:"temperature,omitempty" toml:"temperature" yaml:"temperature"`
	TopP             *float64 `json:"top_p,omitempty" toml:"top_p" yaml:"top_p"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" toml:"presence_penalty" yaml:"presence_penalty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" toml:"frequency_penalty" yaml:"frequency_penalty"`
}

// Layer folds the given option sets into one. Fields set in a later layer
// win over the same field in an earlier one.
func Layer(layers ...Options) Options {
	var out Options
	for _, l := range layers {
		if l.MaxTokens != nil {
			out.MaxTokens = l.MaxTokens
		}
		if l.Temperature != nil {
			out.Temperature = l.Temperature
		}
		if l.TopP != nil {
			out.TopP = l.TopP
		}
		if l.PresencePenalty != nil {
			out.PresencePenalty = l.PresencePenalty
		}
		if l.FrequencyPenalty != nil {
			out.FrequencyPenalty = l.FrequencyPenalty
		}
	}
	return out
}

// Validate reports out-of-range values.
func (o Options) Validate() error {
	if o.MaxTokens != nil && *o.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", *o.MaxTokens)
	}
	if o.Temperature != nil && *o.Temperature < 0 {
		return fmt.Errorf("temperature must not be negative, got %g", *o.Temperature)
	}
	if o.TopP != nil && (*o.TopP < 0 || *o.TopP > 1) {
		return fmt.Errorf("top_p must be within [0, 1], got %g", *o.TopP)
	}
	return nil
}
