package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeErrorBody(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no secrets", "Error: invalid request format", "Error: invalid request format"},
		{"anthropic key", "Error: invalid API key sk-ant-abc123xyz789-test", "Error: invalid API key [REDACTED]"},
		{"openai key", "Error: key sk-abcdefghij1234567890xyz", "Error: key [REDACTED]"},
		{"echoed header", `{"x-api-key": "secret-value"}`, `{[REDACTED]}`},
		{"short sk- prefix kept", "use sk-short", "use sk-short"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeErrorBody(tt.input))
		})
	}
}

func TestStatusError_Temporary(t *testing.T) {
	assert.True(t, (&StatusError{Code: 429}).Temporary())
	assert.True(t, (&StatusError{Code: 500}).Temporary())
	assert.False(t, (&StatusError{Code: 404}).Temporary())
	assert.Equal(t, "openai returned status 401: nope", (&StatusError{Provider: ProviderOpenAI, Code: 401, Body: "nope"}).Error())
}

func TestTransport_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v1", r.Header.Get("X-Version"))
		w.Write([]byte(`{"echo": "hi"}`))
	}))
	defer server.Close()

	tr := newTransport(ProviderOllama, time.Second, map[string]string{"X-Version": "v1"})

	var out struct {
		Echo string `json:"echo"`
	}
	require.NoError(t, tr.postJSON(context.Background(), server.URL, map[string]string{"say": "hi"}, &out))
	assert.Equal(t, "hi", out.Echo)
}

func TestTransport_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down, sk-ant-leaked"))
	}))
	defer server.Close()

	tr := newTransport(ProviderAnthropic, time.Second, nil)
	err := tr.getJSON(context.Background(), server.URL, &struct{}{})

	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusTooManyRequests, status.Code)
	assert.Equal(t, ProviderAnthropic, status.Provider)
	assert.Equal(t, "slow down, [REDACTED]", status.Body)
	assert.True(t, retryable(err))
}

func TestTransport_BadJSONIsFinal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer server.Close()

	err := newTransport(ProviderOllama, time.Second, nil).getJSON(context.Background(), server.URL, &struct{}{})
	require.Error(t, err)
	assert.False(t, retryable(err))
}

func TestTransport_Unreachable(t *testing.T) {
	err := newTransport(ProviderOllama, time.Second, nil).getJSON(context.Background(), "http://127.0.0.1:1", &struct{}{})
	require.Error(t, err)
	assert.True(t, retryable(err))
}

func TestModelFor(t *testing.T) {
	m, err := modelFor(map[Tier]string{Tier1: "small"}, Tier1)
	require.NoError(t, err)
	assert.Equal(t, "small", m)

	_, err = modelFor(map[Tier]string{Tier1: ""}, Tier1)
	assert.ErrorIs(t, err, ErrNoModel)

	_, err = modelFor(nil, Tier2)
	assert.ErrorIs(t, err, ErrNoModel)
}
