package duckdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]any
		want    *Params
		wantErr string
	}{
		{
			name:  "no params",
			input: nil,
			want:  &Params{},
		},
		{
			name: "profiling session limits",
			input: map[string]any{
				"settings": map[string]any{"threads": 2, "memory_limit": "1GB", "preserve_insertion_order": false},
			},
			want: &Params{Settings: map[string]string{
				"threads":                  "2",
				"memory_limit":             "1GB",
				"preserve_insertion_order": "0",
			}},
		},
		{
			name: "monthly parquet batches on s3",
			input: map[string]any{
				"extensions": []any{"httpfs"},
				"secrets": []any{map[string]any{
					"type":     "s3",
					"provider": "credential_chain",
					"scope":    []any{"s3://trips/2024", "s3://trips/2025"},
					"use_ssl":  "true",
				}},
			},
			want: &Params{
				Extensions: []string{"httpfs"},
				Secrets: []SecretConfig{{
					Type:     "s3",
					Provider: "credential_chain",
					Scope:    []any{"s3://trips/2024", "s3://trips/2025"},
					UseSSL:   boolPtrTest(true),
				}},
			},
		},
		{
			name:    "unknown key",
			input:   map[string]any{"extension": "httpfs"},
			wantErr: "invalid duckdb params",
		},
		{
			name:    "settings must be a mapping",
			input:   map[string]any{"settings": []any{"threads=2"}},
			wantErr: "invalid duckdb params",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
