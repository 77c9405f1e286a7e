package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", NotFound("user %d not found", 4), KindNotFound},
		{"wrapped invalid", fmt.Errorf("set priority: %w", InvalidInput("priority is required")), KindInvalidInput},
		{"unavailable", Unavailable(cause, "mail provider unavailable"), KindUnavailable},
		{"plain error", cause, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.True(t, Is(tt.err, tt.want))
		})
	}
	assert.False(t, Is(nil, KindInternal))
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("smtp: 421")
	err := Unavailable(cause, "notifier unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "notifier unavailable: smtp: 421", err.Error())
	assert.Equal(t, "user 9 not found", NotFound("user %d not found", 9).Error())
}
