package id

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var valid = regexp.MustCompile(`^[A-Za-z0-9]+$`)

func TestGenerate_LengthAndCharacters(t *testing.T) {
	id := Generate()
	assert.Len(t, id, 32)
	assert.True(t, valid.MatchString(id), "id contains invalid characters: %q", id)
}

func TestToken_LengthAndCharacters(t *testing.T) {
	tok := Token()
	assert.Len(t, tok, 48)
	assert.True(t, valid.MatchString(tok), "token contains invalid characters: %q", tok)
}

func TestGenerate_Unique(t *testing.T) {
	a := Generate()
	b := Generate()
	assert.NotEqual(t, a, b, "two consecutive calls produced the same ID")
}
