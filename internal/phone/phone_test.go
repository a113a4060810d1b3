package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "already canonical",
			raw:  "6281234567890",
			want: "6281234567890",
		},
		{
			name: "national trunk prefix",
			raw:  "081234567890",
			want: "6281234567890",
		},
		{
			name: "international format with symbols",
			raw:  "+62 812-3456-7890",
			want: "6281234567890",
		},
		{
			name: "channel JID suffix",
			raw:  "6281234567890@s.whatsapp.net",
			want: "6281234567890",
		},
		{
			name: "bare subscriber number",
			raw:  "81234567890",
			want: "6281234567890",
		},
		{
			name: "empty input",
			raw:  "",
			want: "",
		},
		{
			name: "no digits",
			raw:  "hello@s.whatsapp.net",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw, "62"))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"081234567890",
		"6281234567890",
		"+62 812-3456-7890",
		"6281234567890@s.whatsapp.net",
	}

	for _, raw := range inputs {
		once := Normalize(raw, "62")
		assert.Equal(t, once, Normalize(once, "62"), "normalize must be idempotent for %q", raw)
	}
}

func TestNormalizeEquivalentForms(t *testing.T) {
	want := Normalize("6281234567890", "62")
	assert.Equal(t, want, Normalize("081234567890", "62"))
	assert.Equal(t, want, Normalize("+62 812-3456-7890", "62"))
}

func TestJID(t *testing.T) {
	assert.Equal(t, "6281234567890@s.whatsapp.net", JID("6281234567890"))
}
