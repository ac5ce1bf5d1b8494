package errno

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"nil", nil, OK.Code},
		{"errno value", ErrBind, ErrBind.Code},
		{"errno pointer", &ErrDatabase, ErrDatabase.Code},
		{"wrapped sentinel", fmt.Errorf("relay tx 1: %w", ErrSignatureTimeout), 20205},
		{"bare sentinel", ErrInvalidSession, 20104},
		{"unknown", errors.New("boom"), InternalServerError.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := Decode(tt.err)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestDecodeKeepsWrappedMessage(t *testing.T) {
	err := fmt.Errorf("%w: execution reverted", ErrGasEstimationFailed)
	_, msg := Decode(err)
	assert.Equal(t, "gas estimation failed: execution reverted", msg)
}
