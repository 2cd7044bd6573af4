package flowcheck

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError(t *testing.T) {
	base := errors.New("registry exploded")
	err := NewRuntimeError(base)

	assert.True(t, IsRuntimeError(err))
	assert.False(t, IsTestFailureError(err))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "runtime error")

	wrapped := fmt.Errorf("starting up: %w", err)
	assert.True(t, IsRuntimeError(wrapped), "detection must see through wrapping")
}

func TestTestFailureError(t *testing.T) {
	err := NewTestFailureError("2/5 test cases passed")

	assert.True(t, IsTestFailureError(err))
	assert.False(t, IsRuntimeError(err))
	assert.Contains(t, err.Error(), "test failure")

	wrapped := fmt.Errorf("run finished: %w", err)
	assert.True(t, IsTestFailureError(wrapped))
}

func TestErrorPredicatesOnNil(t *testing.T) {
	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsTestFailureError(nil))
}
