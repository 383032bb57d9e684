package linkcode

import (
	"math/rand/v2"
	"strings"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Generator produces verification codes from the 26-letter alphabet.
// Codes are not secret enough for cryptographic use; they only live for the
// code lifetime and can only match codes that are still pending.
type Generator struct {
	intN func(n int) int
}

// NewGenerator creates a generator backed by the runtime's random source
func NewGenerator() *Generator {
	return &Generator{intN: rand.IntN}
}

// Generate returns a code of the given length, lower-cased if requested
func (g *Generator) Generate(length int, lowercase bool) string {
	if length <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[g.intN(len(alphabet))])
	}
	if lowercase {
		return strings.ToLower(b.String())
	}
	return b.String()
}
