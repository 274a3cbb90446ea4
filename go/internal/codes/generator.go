package codes

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	// Alphabet is the set of symbols a session code is drawn from
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Length is the number of symbols in a session code
	Length = 6
)

// ErrExhausted is returned when no free code was found within the attempt budget
var ErrExhausted = errors.New("no free session code")

// Generator produces short human-shareable session codes.
type Generator struct {
	random      io.Reader
	maxAttempts int
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return NewGeneratorWithSource(rand.Reader)
}

// NewGeneratorWithSource creates a generator reading randomness from r
func NewGeneratorWithSource(r io.Reader) *Generator {
	return &Generator{random: r, maxAttempts: 1 << 16}
}

// Generate returns one random code. Every symbol is drawn uniformly.
func (g *Generator) Generate() (string, error) {
	max := big.NewInt(int64(len(Alphabet)))

	code := make([]byte, Length)
	for i := range code {
		n, err := rand.Int(g.random, max)
		if err != nil {
			return "", fmt.Errorf("read random symbol: %w", err)
		}
		code[i] = Alphabet[n.Int64()]
	}
	return string(code), nil
}

// GenerateUnique keeps drawing codes until taken reports one as free.
// The caller must hold whatever lock guards the live-code set so the check
// and the subsequent insert are atomic.
func (g *Generator) GenerateUnique(taken func(code string) bool) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code, err := g.Generate()
		if err != nil {
			return "", err
		}
		if !taken(code) {
			return code, nil
		}
	}
	return "", ErrExhausted
}

// Valid reports whether s has the shape of a session code
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
