package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Run("tagged error returns its code", func(t *testing.T) {
		err := New(CodeNotFound, "record not found")
		assert.Equal(t, CodeNotFound, CodeOf(err))
	})

	t.Run("wrapped tagged error keeps outermost code", func(t *testing.T) {
		inner := New(CodeUnavailable, "endpoint 503")
		outer := Wrap(inner, CodeInternal, "attempt failed")
		assert.Equal(t, CodeInternal, CodeOf(outer))
	})

	t.Run("untagged error defaults to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})

	t.Run("nil has no code", func(t *testing.T) {
		assert.Equal(t, Code(""), CodeOf(nil))
	})
}

func TestWrapPreservesChain(t *testing.T) {
	sentinel := errors.New("driver: bad connection")
	err := Wrap(fmt.Errorf("query ledger: %w", sentinel), CodeInternal, "ledger read failed")

	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
	assert.True(t, Is(err, CodeInternal))
	assert.False(t, Is(err, CodeNotFound))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "no active certificate", MessageOf(New(CodeNotFound, "no active certificate")))
	assert.Equal(t, "internal", MessageOf(errors.New("raw")))
}
