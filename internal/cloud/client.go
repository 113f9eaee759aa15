// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jeranaias/chatstream/internal/model"
)

// Configuration constants for the completion provider.
const (
	// DefaultBaseURL is the base URL for the OpenAI API.
	DefaultBaseURL = "https://api.openai.com/v1/"

	// DefaultTimeout bounds a whole streamed turn.
	DefaultTimeout = 120 * time.Second
)

// sharedStreamingClient has no client timeout; streams are bounded by context.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// REQUEST TYPE
// =============================================================================

// Request is one streamed completion call.
type Request struct {
	Model       model.ChatModel
	Messages    []model.Message
	Temperature float64
	MaxTokens   int
}

// NewRequest builds a Request from params and messages.
func NewRequest(p model.Params, msgs []model.Message) Request {
	return Request{
		Model:       p.Model,
		Messages:    msgs,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
}

func (r Request) params() openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(r.Messages))
	for _, m := range r.Messages {
		switch m.Role {
		case model.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case model.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:       r.Model.String(),
		Messages:    msgs,
		Temperature: openai.Float(r.Temperature),
		MaxTokens:   openai.Int(int64(r.MaxTokens)),
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a credential-bound streaming completion client.
type Client struct {
	sdk        openai.Client
	apiKey     string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u = strings.TrimSpace(u); u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient replaces the shared streaming transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each streamed turn. Zero disables the bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a client bound to apiKey. The key is trimmed; an empty
// key returns ErrNotConfigured.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: sharedStreamingClient,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}

	c.sdk = openai.NewClient(
		option.WithAPIKey(c.apiKey),
		option.WithBaseURL(c.baseURL),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", "chatstream/1.0"),
	)
	return c, nil
}

// BaseURL returns the endpoint the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIKeyMasked returns a masked version of the API key for display.
// No fragment of the key is ever included.
func (c *Client) APIKeyMasked() string {
	return MaskKey(c.apiKey)
}

// MaskKey renders a key as length plus a short SHA-256 fingerprint.
func MaskKey(key string) string {
	if key == "" {
		return "[not set]"
	}
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(key), hex.EncodeToString(h[:4]))
}
