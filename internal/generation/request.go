package generation

import (
	"strings"

	"reelsmith/internal/services"
)

// Request is the provider-neutral description of one clip generation.
type Request struct {
	SourceURL      string
	Instruction    string
	Elements       []string
	NegativePrompt string
	DurationSec    float64
	AspectRatio    string
	KeepAudio      bool
}

// Validate checks the fields the provider cannot default for us.
func (r Request) Validate() error {
	if strings.TrimSpace(r.SourceURL) == "" {
		return services.Wrap(services.ErrValidation, "generation", "submit", "source media reference is required", nil)
	}
	if strings.TrimSpace(r.Instruction) == "" {
		return services.Wrap(services.ErrValidation, "generation", "submit", "transformation instruction is required", nil)
	}
	if r.DurationSec <= 0 {
		return services.Wrap(services.ErrValidation, "generation", "submit", "duration must be positive", nil)
	}
	return nil
}

type providerElement struct {
	ImageURL string `json:"image_url"`
}

type providerSubmitRequest struct {
	SourceURL      string            `json:"source_url"`
	Prompt         string            `json:"prompt"`
	NegativePrompt string            `json:"negative_prompt,omitempty"`
	Elements       []providerElement `json:"elements,omitempty"`
	Duration       float64           `json:"duration"`
	AspectRatio    string            `json:"aspect_ratio,omitempty"`
	KeepAudio      bool              `json:"keep_audio"`
}

func buildSubmitRequest(r Request) providerSubmitRequest {
	out := providerSubmitRequest{
		SourceURL:      strings.TrimSpace(r.SourceURL),
		Prompt:         strings.TrimSpace(r.Instruction),
		NegativePrompt: strings.TrimSpace(r.NegativePrompt),
		Duration:       r.DurationSec,
		AspectRatio:    strings.TrimSpace(r.AspectRatio),
		KeepAudio:      r.KeepAudio,
	}
	for _, element := range r.Elements {
		element = strings.TrimSpace(element)
		if element == "" {
			continue
		}
		out.Elements = append(out.Elements, providerElement{ImageURL: element})
	}
	return out
}
