package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageHandler(t *testing.T, captured *map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		if captured != nil {
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, captured))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":   "msg_test_001",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": `{"result":"YES",`},
				{"type": "text", "text": `"explanation":"e","supporting_evidence":"s"}`},
			},
			"model":       "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":            1200,
				"output_tokens":           80,
				"cache_read_input_tokens": 1000,
			},
		})
	}
}

func TestClient_CreateMessage(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(messageHandler(t, &body))
	defer ts.Close()

	temp := 0.0
	client := NewClient("test-key", WithBaseURL(ts.URL), WithMaxRetries(0))
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   1024,
		System:      BuildCachedSystemBlocks("You evaluate annual reports.", "5m"),
		Messages:    []Message{{Role: "user", Content: "Is the company compliant?"}},
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_test_001", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, `{"result":"YES","explanation":"e","supporting_evidence":"s"}`, resp.Text())
	assert.Equal(t, int64(1000), resp.Usage.CacheReadInputTokens)

	assert.Equal(t, "claude-sonnet-4-5-20250929", body["model"])
	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	block := system[0].(map[string]any)
	assert.Equal(t, "You evaluate annual reports.", block["text"])
	assert.NotNil(t, block["cache_control"])
}

func TestClient_CreateMessage_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	client := NewClient("test-key", WithBaseURL(ts.URL), WithMaxRetries(0))
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 16,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
}

func TestStatusCode_NonAPIError(t *testing.T) {
	assert.Zero(t, StatusCode(io.EOF))
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	assert.Nil(t, BuildCachedSystemBlocks("", "1h"))

	blocks := BuildCachedSystemBlocks("primer", "1h")
	require.Len(t, blocks, 1)
	assert.Equal(t, "primer", blocks[0].Text)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestTokenUsage_EstimateCost(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 18.0, u.EstimateCost("claude-sonnet-4-5-20250929"), 1e-9)
	assert.Zero(t, u.EstimateCost("unknown-model"))

	cached := TokenUsage{CacheCreationInputTokens: 1_000_000, CacheReadInputTokens: 1_000_000}
	assert.InDelta(t, 3.0*1.25+3.0*0.1, cached.EstimateCost("claude-sonnet-4-5-20250929"), 1e-9)
}
