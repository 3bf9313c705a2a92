package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ariya-Dice/tansoo/pkg/errors"
)

func TestDoJSON_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc", r.Header.Get("X-Trace"))

		var in map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]int{"doubled": in["n"] * 2})
	}))
	defer server.Close()

	var out struct {
		Doubled int `json:"doubled"`
	}
	err := DoJSON(context.Background(), New(fastConfig(0)), http.MethodPost, server.URL, "order service",
		map[string]int{"n": 21}, &out, WithHeader("X-Trace", "abc"))
	require.NoError(t, err)
	assert.Equal(t, 42, out.Doubled)
}

func TestDoJSON_TranslatesErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Invalid request","message":"Items are required"}`))
	}))
	defer server.Close()

	err := DoJSON(context.Background(), New(fastConfig(0)), http.MethodPost, server.URL, "order service",
		map[string]string{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "Items are required")
}

func TestDoJSON_BadResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	var out []string
	err := DoJSON(context.Background(), New(fastConfig(0)), http.MethodGet, server.URL, "catalog", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode catalog response")
}
