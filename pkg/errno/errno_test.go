package errno

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	code, msg := Decode(nil)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Success", msg)

	code, _ = Decode(fmt.Errorf("wrap: %w", ErrAllocationExhausted))
	assert.Equal(t, ErrAllocationExhausted.Code, code)

	code, msg = Decode(errors.New("boom"))
	assert.Equal(t, InternalServerError.Code, code)
	assert.Equal(t, "boom", msg)
}

func TestWithMessageKeepsCode(t *testing.T) {
	e := ErrBind.WithMessage("address is required")
	assert.Equal(t, ErrBind.Code, e.Code)
	assert.Equal(t, "address is required", e.Error())
	assert.Equal(t, "Error occurred while binding the request body to the struct", ErrBind.Message)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("x: %w", ErrAllocationExhausted)))
	assert.False(t, IsRetryable(ErrDerivation))
	assert.False(t, IsRetryable(errors.New("plain")))
}
