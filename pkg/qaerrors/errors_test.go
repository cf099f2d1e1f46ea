package qaerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapturesTypeAndStack(t *testing.T) {
	err := New(ErrorTypeExhausted, "no capacity")

	assert.Equal(t, ErrorTypeExhausted, err.Type)
	assert.NotEmpty(t, err.Stack)
	assert.Equal(t, "exhausted: no capacity", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrorTypeInitialization, "agent initialization failed")

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "ignored"))
}

func TestWrapKeepsInnerStack(t *testing.T) {
	inner := New(ErrorTypeReset, "reset failed")
	outer := Wrap(inner, ErrorTypeDispose, "disposing after failed reset")

	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, IsType(outer, ErrorTypeDispose))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeAcquireTimeout, "timed out").
		WithDetail("agent_type", "perf-tester").
		WithDetail("priority", 5)

	assert.Equal(t, "perf-tester", err.Details["agent_type"])
	assert.Equal(t, 5, err.Details["priority"])
}

func TestIsTypeFollowsWrapping(t *testing.T) {
	err := Wrap(New(ErrorTypeExhausted, "full"), ErrorTypeInternal, "outer")

	assert.True(t, IsType(err, ErrorTypeInternal))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeInternal))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrorTypeExhausted, "full")))
	assert.True(t, IsRetryable(New(ErrorTypeAcquireTimeout, "slow")))
	assert.True(t, IsRetryable(New(ErrorTypeHealth, "sick")))
	assert.False(t, IsRetryable(New(ErrorTypeShuttingDown, "bye")))
	assert.False(t, IsRetryable(New(ErrorTypeValidation, "bad")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
