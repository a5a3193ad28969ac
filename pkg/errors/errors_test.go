package errors

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	e1 := New("cause1")
	e2 := New("cause2").Wrap(e1)
	e := New("dummy").Wrap(e2)
	e3 := e.Unwrap()
	assert.True(t, Is(e, e1))
	assert.True(t, Is(e, e2))
	assert.True(t, e3 == e2)
}

func TestWrapKeepsSentinel(t *testing.T) {
	sentinel := New("not found")

	wrapped := sentinel.Wrap(io.EOF)
	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, Is(wrapped, io.EOF))
	assert.Nil(t, sentinel.Unwrap(), "the sentinel must not be mutated")
	assert.Equal(t, "not found: EOF", wrapped.Error())

	detailed := sentinel.WrapMessage("key %q", "a.config")
	assert.True(t, Is(detailed, sentinel))
	assert.Equal(t, `not found (key "a.config")`, detailed.Error())
	assert.Equal(t, "not found", sentinel.Error())

	other := New("not found")
	assert.False(t, Is(wrapped, other), "sentinels match by identity, not by message")
}
