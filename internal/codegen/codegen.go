// Package codegen produces candidate short codes.
package codegen

import gonanoid "github.com/matoous/go-nanoid/v2"

// Alphabet is the set of characters a code is drawn from.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generate returns a code of exactly length characters, each drawn
// independently and uniformly from Alphabet. Lengths below 1 are treated as 1.
func Generate(length int) string {
	if length < 1 {
		length = 1
	}

	return gonanoid.MustGenerate(Alphabet, length)
}
