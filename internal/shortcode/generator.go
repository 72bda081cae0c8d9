package shortcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// codeAlphabet is URL-safe: letters, digits, hyphen and underscore.
const codeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789-_"

const (
	DefaultCodeLength  = 8
	DefaultMaxAttempts = 10
)

// ErrExhaustedAttempts means the generator could not find a free code within
// its attempt budget. Hitting this is an operational signal that the code
// length or alphabet needs tuning.
var ErrExhaustedAttempts = errors.New("exhausted shortcode generation attempts")

// CodeChecker reports whether a code is already in use. All records count,
// including deactivated ones: an issued code is reserved forever.
type CodeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// Generator produces random shortcodes of a fixed length. It does not
// guarantee uniqueness; that is the caller's job.
type Generator struct {
	length int
}

func NewGenerator(length int) *Generator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &Generator{length: length}
}

// Generate returns a random code drawn from the URL-safe alphabet using
// crypto/rand. Pure with respect to the store: no I/O, no side effects.
func (g *Generator) Generate() (string, error) {
	var b strings.Builder
	b.Grow(g.length)

	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < g.length; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		b.WriteByte(codeAlphabet[idx.Int64()])
	}

	return b.String(), nil
}

// GenerateUnique generates codes until one is unused or maxAttempts is
// exhausted. Bounding the retries keeps worst-case creation latency bounded
// and surfaces collision-rate problems instead of looping forever.
func (g *Generator) GenerateUnique(ctx context.Context, checker CodeChecker, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := g.Generate()
		if err != nil {
			return "", err
		}

		exists, err := checker.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code availability: %w", err)
		}

		if !exists && !IsReserved(code) {
			return code, nil
		}
	}

	return "", ErrExhaustedAttempts
}
