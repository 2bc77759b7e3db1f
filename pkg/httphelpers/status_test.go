package httphelpers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"trustresolver/pkg/helpers"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	ctx := context.Background()

	t.Run("Helpers sentinel errors", func(t *testing.T) {
		tests := []struct {
			name     string
			err      error
			expected int
		}{
			{"no_trust_result", helpers.ErrNoTrustResult, http.StatusNotFound},
			{"duplicate_key", helpers.ErrDuplicateKey, http.StatusConflict},
			{"issuer_not_authorized", helpers.ErrIssuerNotAuthorized, http.StatusBadRequest},
			{"signature_invalid", helpers.ErrSignatureInvalid, http.StatusBadRequest},
			{"digest_mismatch", helpers.ErrDigestMismatch, http.StatusBadRequest},
			{"circular_reference", helpers.ErrCircularReference, http.StatusBadRequest},
			{"did_resolution_failed", helpers.ErrDIDResolutionFailed, http.StatusBadGateway},
			{"vp_dereference_failed", helpers.ErrVPDereferenceFailed, http.StatusBadGateway},
			{"leader_lock_held", helpers.ErrLeaderLockHeld, http.StatusConflict},
			{"internal_error", helpers.ErrInternalServerError, http.StatusInternalServerError},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				status := StatusCode(ctx, tt.err)
				assert.Equal(t, tt.expected, status)
			})
		}
	})

	t.Run("Error string inference", func(t *testing.T) {
		tests := []struct {
			name     string
			err      error
			expected int
		}{
			{"not_found_msg", errors.New("resource not found"), http.StatusNotFound},
			{"unauthorized_msg", errors.New("unauthorized access"), http.StatusUnauthorized},
			{"forbidden_msg", errors.New("access forbidden"), http.StatusForbidden},
			{"invalid_msg", errors.New("invalid input"), http.StatusBadRequest},
			{"conflict_msg", errors.New("already exists"), http.StatusConflict},
			{"timeout_msg", errors.New("request timeout"), http.StatusRequestTimeout},
			{"unknown_msg", errors.New("some random error"), http.StatusInternalServerError},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				status := StatusCode(ctx, tt.err)
				assert.Equal(t, tt.expected, status)
			})
		}
	})

	t.Run("Custom helpers.Error with title", func(t *testing.T) {
		tests := []struct {
			name     string
			err      *helpers.Error
			expected int
		}{
			{"not_found_title", helpers.NewError("not_found"), http.StatusNotFound},
			{"validation_error", helpers.NewError("validation_error"), http.StatusBadRequest},
			{"already_exists", helpers.NewError("already_exists"), http.StatusConflict},
			{"internal_error", helpers.NewError("internal_server_error"), http.StatusInternalServerError},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				status := StatusCode(ctx, tt.err)
				assert.Equal(t, tt.expected, status)
			})
		}
	})
}

func TestContains(t *testing.T) {
	tests := []struct {
		name       string
		errStr     string
		substrings []string
		expected   bool
	}{
		{"matches_first", "document not found", []string{"not found", "missing"}, true},
		{"matches_second", "data is missing", []string{"not found", "missing"}, true},
		{"case_insensitive", "Document NOT FOUND", []string{"not found"}, true},
		{"no_match", "some error", []string{"not found", "missing"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := contains(tt.errStr, tt.substrings...)
			assert.Equal(t, tt.expected, result)
		})
	}
}
