package i18n

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func init() {
	Init("pt-BR")
}

func TestT_UsesContextLocale(t *testing.T) {
	ctx := WithLocale(context.Background(), "en")

	assert.Equal(t, "Record not found.", T(ctx, "not_found"))
	assert.Equal(t, "Registro não encontrado.", T(context.Background(), "not_found"))
}

func TestT_TemplateData(t *testing.T) {
	ctx := WithLocale(context.Background(), "en")

	msg := T(ctx, "duplicate_punch", map[string]any{"At": "10/05/2024 08:00"})

	assert.Equal(t, "A punch was already registered on 10/05/2024 08:00.", msg)
}

func TestT_UnknownMessageReturnsID(t *testing.T) {
	assert.Equal(t, "no_such_message", T(context.Background(), "no_such_message"))
}

func TestMatch(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", "pt-BR"},
		{"en-US,en;q=0.9", "en"},
		{"pt-BR,pt;q=0.9", "pt-BR"},
		{"pt", "pt-BR"},
		{"ja", "pt-BR"},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.header))
		})
	}
}
