package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

func anthropicCfg(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:  "anthropic",
		APIKey:    config.Secret("test-key"),
		BaseURL:   baseURL,
		RateLimit: 1000,
		Burst:     1000,
	}
}

func openAICfg(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:  "openai",
		APIKey:    config.Secret("test-key"),
		BaseURL:   baseURL,
		RateLimit: 1000,
		Burst:     1000,
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.LLMConfig
		wantErr  bool
		wantType any
	}{
		{
			name:     "anthropic",
			cfg:      anthropicCfg(""),
			wantType: &AnthropicClient{},
		},
		{
			name:     "openai",
			cfg:      openAICfg(""),
			wantType: &OpenAIClient{},
		},
		{
			name:    "unknown provider",
			cfg:     config.LLMConfig{Provider: "bard", APIKey: config.Secret("k")},
			wantErr: true,
		},
		{
			name:    "missing api key",
			cfg:     config.LLMConfig{Provider: "anthropic"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, c)
		})
	}
}

func TestAnthropicClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("Anthropic-Version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be brief", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		fmt.Fprint(w, `{"content":[{"type":"text","text":"hello back"}]}`)
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(anthropicCfg(srv.URL))
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello back", got)
}

func TestAnthropicClient_Complete_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"ok"}]}`)
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(anthropicCfg(srv.URL))
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicClient_Complete_PermanentError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad prompt"}}`)
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(anthropicCfg(srv.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad prompt")
	assert.False(t, IsTransient(err))
	// Permanent errors get no retries.
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnthropicClient_Complete_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":[]}`)
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(anthropicCfg(srv.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(openAICfg(srv.URL))
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", got)
}

func TestOpenAIClient_Complete_ServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(openAICfg(srv.URL))
	require.NoError(t, err)
	client.maxRetries = 1

	_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestIsTransient(t *testing.T) {
	base := errors.New("boom")
	assert.False(t, IsTransient(base))
	assert.True(t, IsTransient(&TransientError{Err: base}))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", &TransientError{Err: base})))

	var te *TransientError
	require.ErrorAs(t, &TransientError{Err: base}, &te)
	assert.Equal(t, base, te.Unwrap())
}
