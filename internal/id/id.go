package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generate returns a 32-character alphanumeric nanoid. Used for subscriber
// session ids and user record ids.
func Generate() string {
	return generate(32)
}

// Token returns a 48-character alphanumeric nanoid used as an opaque
// client auth token.
func Token() string {
	return generate(48)
}

func generate(n int) string {
	id, err := gonanoid.Generate(alphabet, n)
	if err != nil {
		panic(fmt.Sprintf("generate nanoid: %v", err))
	}
	return id
}
