package geminiservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// --- Gemini API Configuration ---
const (
	requestTimeout = 30 * time.Second

	temperature     = 0.7
	topK            = 40
	topP            = 0.95
	maxOutputTokens = 1024
)

// Finish reasons reported on a candidate that we map to their own outcomes.
const (
	finishReasonMaxTokens = "MAX_TOKENS"
	finishReasonSafety    = "SAFETY"
)

// --- Structs for Gemini API Request/Response ---

type GeminiPayload struct {
	Contents         []GeminiContent   `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text string `json:"text,omitempty"`
}

type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type GeminiResponse struct {
	Candidates     []GeminiCandidate `json:"candidates"`
	PromptFeedback *PromptFeedback   `json:"promptFeedback,omitempty"`
}

type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// firstText returns the first text part of the candidate, or "".
func (c GeminiCandidate) firstText() string {
	if len(c.Content.Parts) == 0 {
		return ""
	}
	return c.Content.Parts[0].Text
}

type PromptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// GeminiAPIError is the provider's error envelope on non-2xx responses.
type GeminiAPIError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// --- Client ---

// Client issues generateContent calls against the Generative Language API.
// The HTTP client carries a hard timeout so every Fetch reaches a terminal
// Outcome even when the far end stalls.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(logger zerolog.Logger, baseURL, model, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        logger.With().Str("component", "gemini").Logger(),
	}
}

// Fetch performs exactly one generateContent call and classifies the result.
// It never retries; the caller decides what a failed outcome means for the
// conversation.
func (c *Client) Fetch(ctx context.Context, prompt string) Outcome {
	// Build the payload
	payload := GeminiPayload{
		Contents: []GeminiContent{
			{Parts: []GeminiPart{{Text: prompt}}},
		},
		GenerationConfig: &GenerationConfig{
			Temperature:     temperature,
			TopK:            topK,
			TopP:            topP,
			MaxOutputTokens: maxOutputTokens,
		},
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Outcome{Kind: KindDecodeError, Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return Outcome{Kind: KindTransportError, Transport: TransportGeneric, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	// Never log the URL; it carries the key.
	c.log.Info().Str("model", c.model).Msg("Calling Gemini API...")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := classifyTransport(err)
		c.log.Warn().Err(err).Str("transport", kind.String()).Msg("Gemini request failed")
		return Outcome{Kind: KindTransportError, Transport: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		kind := classifyTransport(err)
		return Outcome{Kind: KindTransportError, Transport: kind, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return c.classifyErrorBody(resp.StatusCode, body)
	}
	return c.classifySuccessBody(body)
}

// classifyErrorBody maps a non-200 response to ApiError when the provider's
// error envelope is present, and to DecodeError otherwise.
func (c *Client) classifyErrorBody(status int, body []byte) Outcome {
	var envelope GeminiAPIError
	if err := json.Unmarshal(body, &envelope); err == nil && (envelope.Error.Code != 0 || envelope.Error.Message != "") {
		c.log.Warn().
			Int("status", status).
			Int("code", envelope.Error.Code).
			Str("message", envelope.Error.Message).
			Msg("Gemini API returned an error envelope")
		return Outcome{Kind: KindAPIError, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	c.log.Warn().Int("status", status).Msg("Gemini API returned an unrecognized error body")
	return Outcome{Kind: KindDecodeError, Err: fmt.Errorf("API returned non-200 status %d with unrecognized body", status)}
}

// classifySuccessBody maps a 200 response to the outcome taxonomy:
// prompt feedback wins over candidates, text wins over finish reasons.
func (c *Client) classifySuccessBody(body []byte) Outcome {
	var geminiResp GeminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		c.log.Warn().Err(err).Msg("failed to decode Gemini response")
		return Outcome{Kind: KindDecodeError, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
		return Outcome{Kind: KindBlocked, Reason: geminiResp.PromptFeedback.BlockReason}
	}

	if len(geminiResp.Candidates) == 0 {
		return Outcome{Kind: KindEmpty}
	}

	cand := geminiResp.Candidates[0]
	if text := cand.firstText(); text != "" {
		return Outcome{Kind: KindRecommendation, Text: text}
	}

	switch cand.FinishReason {
	case finishReasonMaxTokens:
		return Outcome{Kind: KindTruncated}
	case finishReasonSafety:
		return Outcome{Kind: KindSafetyBlocked}
	default:
		return Outcome{Kind: KindEmpty, Reason: cand.FinishReason}
	}
}

// classifyTransport tells offline-looking failures from timeouts. Timeout is
// checked first because dial and read timeouts also arrive wrapped in
// *net.OpError.
func classifyTransport(err error) TransportKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return TransportTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return TransportOffline
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return TransportOffline
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return TransportOffline
	}
	return TransportGeneric
}
