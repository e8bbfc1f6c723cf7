package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestClassifySentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"not settable", ErrNotSettable, ErrorInvalid},
		{"out of bound", ErrOutOfBound, ErrorInvalid},
		{"invalid type", ErrInvalidType, ErrorInvalid},
		{"timeout", ErrTimeout, ErrorTransient},
		{"cancelled", ErrCancelled, ErrorTransient},
		{"stop timeout", ErrStopTimeout, ErrorFatal},
		{"context deadline", context.DeadlineExceeded, ErrorTransient},
		{"unknown", stderrors.New("mystery"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyWrapped(t *testing.T) {
	// Classification must survive fmt.Errorf wrapping
	err := fmt.Errorf("cell temperature: %w", ErrOutOfBound)
	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))
}

func TestWrapConvention(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Cell", "Set", "validation")
	require.Error(t, err)
	assert.Equal(t, "Cell.Set: validation failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))

	assert.NoError(t, Wrap(nil, "Cell", "Set", "validation"))
}

func TestWrapClassified(t *testing.T) {
	base := ErrOutOfBound
	err := WrapInvalid(base, "Cell", "Set", "range check")
	require.Error(t, err)

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "Cell", ce.Component)
	assert.True(t, stderrors.Is(err, ErrOutOfBound))

	assert.True(t, IsTransient(WrapTransient(stderrors.New("x"), "c", "m", "a")))
	assert.True(t, IsFatal(WrapFatal(stderrors.New("x"), "c", "m", "a")))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
}
