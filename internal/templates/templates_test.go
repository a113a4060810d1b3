package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		content string
		vars    map[string]string
		want    string
	}{
		{
			name:    "single variable",
			content: "Halo {{name}}!",
			vars:    map[string]string{"name": "Budi"},
			want:    "Halo Budi!",
		},
		{
			name:    "repeated and multiple variables",
			content: "{{greeting}} {{name}}, saldo {{name}} adalah {{amount}}",
			vars:    map[string]string{"greeting": "Halo", "name": "Budi", "amount": "Rp50.000"},
			want:    "Halo Budi, saldo Budi adalah Rp50.000",
		},
		{
			name:    "missing variable renders empty",
			content: "Halo {{name}}, kode: {{code}}",
			vars:    map[string]string{"name": "Budi"},
			want:    "Halo Budi, kode: ",
		},
		{
			name:    "whitespace inside braces",
			content: "Halo {{ name }}!",
			vars:    map[string]string{"name": "Budi"},
			want:    "Halo Budi!",
		},
		{
			name:    "no variables",
			content: "Pesan statis",
			vars:    nil,
			want:    "Pesan statis",
		},
		{
			name:    "single braces untouched",
			content: "literal {name} stays",
			vars:    map[string]string{"name": "Budi"},
			want:    "literal {name} stays",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.content, tt.vars))
		})
	}
}

func TestVariables(t *testing.T) {
	got := Variables("{{a}} then {{b}} then {{a}} again")
	assert.Equal(t, []string{"a", "b"}, got)

	assert.Nil(t, Variables("no placeholders"))
}

func TestValidate(t *testing.T) {
	undeclared := Validate("Halo {{name}}, total {{amount}}", []string{"name"})
	assert.Equal(t, []string{"amount"}, undeclared)

	assert.Nil(t, Validate("Halo {{name}}", []string{"name", "amount"}))
}
