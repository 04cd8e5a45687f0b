// Package extract turns PDF documents into text and text into a structured
// record using an OpenAI-compatible chat completions endpoint.
package extract

import "context"

// Record is the structured analysis of one document.
type Record struct {
	DocumentType string   `json:"document_type"`
	Title        string   `json:"title,omitempty"`
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points,omitempty"`
	Entities     []string `json:"entities,omitempty"`
	Dates        []string `json:"dates,omitempty"`
	Amounts      []string `json:"amounts,omitempty"`
	Language     string   `json:"language,omitempty"`
	// Fallback marks a placeholder produced when the model answered but its
	// output could not be used.
	Fallback bool `json:"fallback,omitempty"`
}

// FallbackRecord is returned instead of an error when the model's reply is
// unusable.
func FallbackRecord() Record {
	return Record{
		DocumentType: "unknown",
		Summary:      "Analysis unavailable: the document could not be analyzed automatically.",
		KeyPoints:    []string{},
		Fallback:     true,
	}
}

// Extractor is the contract the analysis pipeline depends on.
type Extractor interface {
	Extract(ctx context.Context, text string) (Record, error)
}
