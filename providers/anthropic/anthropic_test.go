package anthropic

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/llmgate/llmgate/pkg/errors"
	"github.com/llmgate/llmgate/pkg/types"
)

func buildWire(t *testing.T, req *types.ChatRequest) map[string]any {
	t.Helper()
	p := New(WithAPIKey("ak-test"))

	httpReq, err := p.BuildRequest(context.Background(), req)
	require.NoError(t, err)

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(body, &wire))
	return wire
}

func TestBuildRequest_SystemMessageLifted(t *testing.T) {
	wire := buildWire(t, &types.ChatRequest{
		Model: "claude-3-haiku-20240307",
		Messages: []types.ChatMessage{
			{Role: "user", Content: "first"},
			{Role: "system", Content: "be terse"},
			{Role: "assistant", Content: "ok"},
			{Role: "user", Content: "second"},
		},
	})

	assert.Equal(t, "be terse", wire["system"])

	msgs := wire["messages"].([]any)
	require.Len(t, msgs, 3)
	// Order of non-system messages is preserved.
	roles := make([]string, 0, 3)
	for _, m := range msgs {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"user", "assistant", "user"}, roles)
}

func TestBuildRequest_OnlyFirstSystemLifted(t *testing.T) {
	wire := buildWire(t, &types.ChatRequest{
		Model: "claude-3-haiku-20240307",
		Messages: []types.ChatMessage{
			{Role: "system", Content: "one"},
			{Role: "system", Content: "two"},
			{Role: "user", Content: "hi"},
		},
	})

	assert.Equal(t, "one", wire["system"])
	msgs := wire["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].(map[string]any)["content"])
}

func TestBuildRequest_MaxTokensDefault(t *testing.T) {
	wire := buildWire(t, &types.ChatRequest{
		Model:    "claude-3-haiku-20240307",
		Messages: []types.ChatMessage{{Role: "user", Content: "hi"}},
	})
	assert.Equal(t, float64(DefaultMaxTokens), wire["max_tokens"])

	wire = buildWire(t, &types.ChatRequest{
		Model:     "claude-3-haiku-20240307",
		Messages:  []types.ChatMessage{{Role: "user", Content: "hi"}},
		MaxTokens: 256,
	})
	assert.Equal(t, float64(256), wire["max_tokens"])
}

func TestBuildRequest_Headers(t *testing.T) {
	p := New(WithAPIKey("ak-test"))
	httpReq, err := p.BuildRequest(context.Background(), &types.ChatRequest{
		Model:    "claude-3-haiku-20240307",
		Messages: []types.ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "ak-test", httpReq.Header.Get("x-api-key"))
	assert.Equal(t, DefaultAPIVersion, httpReq.Header.Get("anthropic-version"))
	assert.Equal(t, DefaultBaseURL+"/v1/messages", httpReq.URL.String())
}

func parseBody(t *testing.T, body string) (*types.ChatResponse, error) {
	t.Helper()
	p := New()
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
	return p.ParseResponse(resp)
}

func TestParseResponse(t *testing.T) {
	body := `{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"content": [{"type": "text", "text": "hello "}, {"type": "text", "text": "world"}],
		"model": "claude-3-haiku-20240307",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 4}
	}`

	resp, err := parseBody(t, body)
	require.NoError(t, err)

	assert.Equal(t, "msg_01", resp.ID)
	assert.Equal(t, "hello world", resp.Content)
	assert.Equal(t, types.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, types.Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14}, resp.Usage)
}

func TestParseResponse_StopReasonMapping(t *testing.T) {
	tests := []struct {
		vendor string
		want   string
	}{
		{"end_turn", types.FinishReasonStop},
		{"stop_sequence", types.FinishReasonStop},
		{"max_tokens", types.FinishReasonLength},
		{"", types.FinishReasonStop},
	}

	for _, tt := range tests {
		t.Run("vendor="+tt.vendor, func(t *testing.T) {
			body := `{"id":"m","model":"claude-3-haiku-20240307","content":[{"type":"text","text":"x"}],"stop_reason":"` + tt.vendor + `"}`
			resp, err := parseBody(t, body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.FinishReason)
		})
	}
}

func TestParseResponse_MissingUsageDefaultsToZero(t *testing.T) {
	body := `{"id":"m","model":"claude-3-haiku-20240307","content":[{"type":"text","text":"x"}],"stop_reason":"end_turn"}`
	resp, err := parseBody(t, body)
	require.NoError(t, err)
	assert.Equal(t, types.Usage{}, resp.Usage)
}

func TestMapError(t *testing.T) {
	p := New()

	body := []byte(`{"error":{"type":"overloaded_error","message":"overloaded"}}`)
	err := p.MapError(529, body)
	llmErr, ok := err.(*llmerrors.LLMError)
	require.True(t, ok)
	assert.True(t, llmErr.Retryable, "5xx must be retryable")
	assert.Equal(t, "overloaded", llmErr.Message)

	err = p.MapError(http.StatusTooManyRequests, body)
	assert.True(t, err.(*llmerrors.LLMError).Retryable)

	err = p.MapError(http.StatusBadRequest, body)
	assert.False(t, err.(*llmerrors.LLMError).Retryable)
}
