package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/llmgate/llmgate/pkg/types"
)

// Fingerprint derives the coalescing key for a request: a SHA-256 hash
// over the fields that determine the upstream call. Two requests with
// the same fingerprint hitting the gateway inside the coalescing window
// share one provider call.
func Fingerprint(providerName string, req *types.ChatRequest) string {
	var sb strings.Builder

	sb.WriteString("provider:")
	sb.WriteString(providerName)
	sb.WriteString("|model:")
	sb.WriteString(req.Model)

	for _, m := range req.Messages {
		fmt.Fprintf(&sb, "|msg:%s:%s", m.Role, m.Content)
	}
	if req.Temperature != nil {
		fmt.Fprintf(&sb, "|temp:%.2f", *req.Temperature)
	}
	if req.MaxTokens > 0 {
		fmt.Fprintf(&sb, "|max_tokens:%d", req.MaxTokens)
	}

	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}
