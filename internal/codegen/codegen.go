// Package codegen defines the invitation code format and the bounded-retry
// uniqueness policy backed by a caller-supplied existence check.
package codegen

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const (
	// DefaultPrefix is the deployment's event short-name.
	DefaultPrefix = "SUMMIT"

	alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	randomLen = 6

	// ~36^6 combinations per prefix, exhausting 10 attempts means the
	// code space is effectively saturated and the prefix or length needs
	// revisiting.
	maxAttempts = 10
)

// ErrCodeSpaceExhausted is fatal for the issuing call, callers log it
// loudly and do not retry.
var ErrCodeSpaceExhausted = errors.New("codegen: unable to generate a unique code")

// Canonical returns the form every store operation compares and persists:
// trimmed and uppercased.
func Canonical(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type Generator struct {
	prefix string
}

func New(prefix string) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Generator{prefix: Canonical(prefix)}
}

func (g *Generator) Prefix() string {
	return g.prefix
}

// Generate produces one candidate code: PREFIX + 6 random [A-Z0-9] chars.
func (g *Generator) Generate() (string, error) {
	var sb strings.Builder
	sb.WriteString(g.prefix)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < randomLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String(), nil
}

// GenerateUnique retries Generate against the exists predicate up to
// maxAttempts times. An existence-check failure is returned as is, a full
// set of collisions returns ErrCodeSpaceExhausted.
func (g *Generator) GenerateUnique(exists func(code string) (bool, error)) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		code, err := g.Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
