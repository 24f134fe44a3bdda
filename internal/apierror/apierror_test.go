package apierror

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	err := Conflict("expense exp_1 is already linked to another transaction")
	assert.Equal(t, "CONFLICT: expense exp_1 is already linked to another transaction", err.Error())
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("transaction not found"), http.StatusNotFound},
		{"conflict", Conflict("already matched"), http.StatusConflict},
		{"invalid input", InvalidInput("bad mapping", nil), http.StatusBadRequest},
		{"bad request", NewAPIError(ErrBadRequest, "bad request", nil), http.StatusBadRequest},
		{"internal", NewAPIError(ErrInternalServer, "boom", nil), http.StatusInternalServerError},
		{"plain error", errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToHTTPStatus(tt.err))
		})
	}
}
