package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIKeyAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := APIKeyAuth("secret-key")(next)

	do := func(configure func(r *http.Request)) int {
		r := httptest.NewRequest(http.MethodGet, "/v1/projects", nil)
		if configure != nil {
			configure(r)
		}
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, r)
		return w.Code
	}

	t.Run("missing key rejected", func(t *testing.T) {
		if code := do(nil); code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", code, http.StatusUnauthorized)
		}
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		code := do(func(r *http.Request) { r.Header.Set("X-API-Key", "nope") })
		if code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", code, http.StatusForbidden)
		}
	})

	t.Run("header key accepted", func(t *testing.T) {
		code := do(func(r *http.Request) { r.Header.Set("X-API-Key", "secret-key") })
		if code != http.StatusOK {
			t.Errorf("status = %d, want %d", code, http.StatusOK)
		}
	})

	t.Run("bearer token accepted", func(t *testing.T) {
		code := do(func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret-key") })
		if code != http.StatusOK {
			t.Errorf("status = %d, want %d", code, http.StatusOK)
		}
	})
}
