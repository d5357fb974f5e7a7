package llm

import (
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/dfranca/folio-chat/internal/config"
)

// NewClient creates a client for the upstream chat-completion provider.
// The timeout bounds the whole upstream exchange; there are no retries.
func NewClient(cfg config.LLMConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	return openai.NewClientWithConfig(clientConfig)
}
