package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleConfig struct {
	IndexerURL string `json:"indexer_url" validate:"required,url"`
	PollSecs   int    `json:"poll_seconds" validate:"required,gt=0"`
}

func TestCheckSimple(t *testing.T) {
	tts := []struct {
		name string
		have sampleConfig
		want error
	}{
		{
			name: "ok",
			have: sampleConfig{IndexerURL: "https://indexer.example.com", PollSecs: 5},
			want: nil,
		},
		{
			name: "missing indexer url",
			have: sampleConfig{PollSecs: 5},
			want: &Error{
				Title: "validation_error",
				Err: []map[string]any{
					{
						"field":           "indexer_url",
						"namespace":       "indexer_url",
						"type":            "string",
						"validation":      "required",
						"validationParam": "",
						"value":           "",
					},
				},
			},
		},
		{
			name: "zero poll interval",
			have: sampleConfig{IndexerURL: "https://indexer.example.com"},
			want: &Error{
				Title: "validation_error",
				Err: []map[string]any{
					{
						"field":           "poll_seconds",
						"namespace":       "poll_seconds",
						"type":            "int",
						"validation":      "required",
						"validationParam": "",
						"value":           0,
					},
				},
			},
		},
	}

	for _, tt := range tts {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckSimple(tt.have)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateAgainstJSONSchema(t *testing.T) {
	schema := []byte(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}}
	}`)

	err := ValidateAgainstJSONSchema(schema, map[string]any{"name": "acme"})
	assert.NoError(t, err)

	err = ValidateAgainstJSONSchema(schema, map[string]any{})
	assert.Error(t, err)
}
