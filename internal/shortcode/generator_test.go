package shortcode

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	taken map[string]bool
	all   bool
	err   error
	calls int
}

func (f *fakeChecker) CodeExists(ctx context.Context, code string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.all {
		return true, nil
	}
	return f.taken[code], nil
}

func TestGenerate_LengthAndCharset(t *testing.T) {
	g := NewGenerator(8)

	for i := 0; i < 50; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		assert.Len(t, code, 8)

		for _, c := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, c), "unexpected character %q in %q", c, code)
		}
	}
}

func TestGenerate_DefaultLength(t *testing.T) {
	g := NewGenerator(0)

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Len(t, code, DefaultCodeLength)
}

func TestGenerateUnique_FirstAttempt(t *testing.T) {
	g := NewGenerator(8)
	checker := &fakeChecker{}

	code, err := g.GenerateUnique(context.Background(), checker, 10)
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.Equal(t, 1, checker.calls)
}

func TestGenerateUnique_ExhaustedAttempts(t *testing.T) {
	g := NewGenerator(8)
	checker := &fakeChecker{all: true}

	_, err := g.GenerateUnique(context.Background(), checker, 5)
	require.ErrorIs(t, err, ErrExhaustedAttempts)
	assert.Equal(t, 5, checker.calls)
}

func TestGenerateUnique_CheckerError(t *testing.T) {
	g := NewGenerator(8)
	checker := &fakeChecker{err: errors.New("store down")}

	_, err := g.GenerateUnique(context.Background(), checker, 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExhaustedAttempts)
	assert.Equal(t, 1, checker.calls)
}

func TestGenerateUnique_DefaultAttempts(t *testing.T) {
	g := NewGenerator(8)
	checker := &fakeChecker{all: true}

	_, err := g.GenerateUnique(context.Background(), checker, 0)
	require.ErrorIs(t, err, ErrExhaustedAttempts)
	assert.Equal(t, DefaultMaxAttempts, checker.calls)
}
