package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeValidation, "amount must be positive")
		assert.True(t, HasCode(err, CodeValidation))
		assert.False(t, HasCode(err, CodeForbidden))
	})

	t.Run("matches code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("mint: %w", New(CodeForbidden, "caller is not a minter"))
		assert.True(t, HasCode(err, CodeForbidden))
	})

	t.Run("matches inner code of nested domain errors", func(t *testing.T) {
		inner := New(CodeReentrancy, "reentrant call")
		outer := Wrap(inner, CodeExecutionFailed, "transaction reverted")
		assert.True(t, HasCode(outer, CodeExecutionFailed))
		assert.True(t, HasCode(outer, CodeReentrancy))
		assert.Equal(t, CodeExecutionFailed, GetCode(outer))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, GetCode(errors.New("boom")))
	})
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(cause, CodeInfrastructure, "failed to get nonce")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to get nonce: dial tcp: connection refused", err.Error())
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:      http.StatusBadRequest,
		CodeBadRequest:      http.StatusBadRequest,
		CodeForbidden:       http.StatusForbidden,
		CodeReentrancy:      http.StatusConflict,
		CodeInfrastructure:  http.StatusBadGateway,
		CodeExecutionFailed: http.StatusInternalServerError,
		CodeTimeout:         http.StatusGatewayTimeout,
		Code("unknown"):     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
	assert.True(t, IsClientError(CodeValidation))
	assert.False(t, IsClientError(CodeTimeout))
	assert.False(t, IsClientError(CodeCanceled))
}
