package textnorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Where Is My ORDER?  ", "where is my order?"},
		{"", ""},
		{"\t\n", ""},
		{"ÇA VA", "ça va"},
		{"Track Order ABC123XY", "track order abc123xy"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestNormalize_InvalidUTF8(t *testing.T) {
	assert.NotPanics(t, func() { Normalize("\xff\xfe HELLO") })
}

func TestFold(t *testing.T) {
	assert.Equal(t, "cafe resume", Fold("café résumé"))
	assert.Equal(t, "plain", Fold("plain"))
}

func TestTokens(t *testing.T) {
	got := Tokens("How long does shipping take?")
	assert.Equal(t, []string{"how", "long", "does", "shipping", "take"}, got)
}

func TestTokens_DropsSingleCharacters(t *testing.T) {
	assert.Equal(t, []string{"need", "refund"}, Tokens("I need a refund"))
}

func TestTokens_FoldsAccents(t *testing.T) {
	assert.Equal(t, []string{"cafe", "order"}, Tokens("Café ORDER"))
}

func TestTokens_Empty(t *testing.T) {
	assert.Empty(t, Tokens(""))
	assert.Empty(t, Tokens("?!  ..."))
}

func TestTokens_VeryLongInput(t *testing.T) {
	long := strings.Repeat("refund ", 20000)
	assert.Len(t, Tokens(long), 20000)
}
