package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultExpoPushURL = "https://exp.host/--/api/v2/push/send"
	ExpoMaxChunkSize   = 100
)

var expoUUIDToken = regexp.MustCompile(`(?i)^[a-z\d]{8}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{12}$`)

// ExpoSender delivers notifications through the Expo push service.
type ExpoSender struct {
	endpoint    string
	accessToken string
	chunkSize   int
	client      *http.Client
	logger      *slog.Logger
}

// NewExpoSender creates an Expo sender. chunkSize is clamped to
// [1, ExpoMaxChunkSize]; an empty endpoint falls back to the public API.
func NewExpoSender(endpoint, accessToken string, chunkSize int, timeout time.Duration, logger *slog.Logger) *ExpoSender {
	if endpoint == "" {
		endpoint = DefaultExpoPushURL
	}
	if chunkSize <= 0 || chunkSize > ExpoMaxChunkSize {
		chunkSize = ExpoMaxChunkSize
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpoSender{
		endpoint:    endpoint,
		accessToken: accessToken,
		chunkSize:   chunkSize,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// ValidToken accepts ExponentPushToken[...], ExpoPushToken[...] and the
// bare UUID form.
func (s *ExpoSender) ValidToken(token string) bool {
	if (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]") {
		return true
	}
	return expoUUIDToken.MatchString(token)
}

func (s *ExpoSender) MaxChunkSize() int { return s.chunkSize }

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoRequestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type expoResponse struct {
	Data   []expoTicket       `json:"data"`
	Errors []expoRequestError `json:"errors"`
}

// SendBatch posts messages as one JSON array. Request-level errors fail the
// batch; ticket-level errors are returned in the result.
func (s *ExpoSender) SendBatch(ctx context.Context, messages []Message) (SendResult, error) {
	if len(messages) == 0 {
		return SendResult{}, fmt.Errorf("expo: no messages supplied")
	}
	if len(messages) > s.chunkSize {
		return SendResult{}, fmt.Errorf("expo: batch of %d exceeds limit %d", len(messages), s.chunkSize)
	}

	body, err := json.Marshal(messages)
	if err != nil {
		return SendResult{}, fmt.Errorf("expo: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.accessToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("expo: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SendResult{}, fmt.Errorf("expo: read response: %w", err)
	}

	var parsed expoResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 400 {
		if decodeErr == nil && len(parsed.Errors) > 0 {
			return SendResult{}, fmt.Errorf("expo: status %d: %s: %s",
				resp.StatusCode, parsed.Errors[0].Code, parsed.Errors[0].Message)
		}
		return SendResult{}, fmt.Errorf("expo: received status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return SendResult{}, fmt.Errorf("expo: decode response: %w", decodeErr)
	}
	if len(parsed.Errors) > 0 {
		return SendResult{}, fmt.Errorf("expo: %s: %s", parsed.Errors[0].Code, parsed.Errors[0].Message)
	}
	if len(parsed.Data) != len(messages) {
		return SendResult{}, fmt.Errorf("expo: got %d tickets for %d messages", len(parsed.Data), len(messages))
	}

	result := SendResult{}
	for i, ticket := range parsed.Data {
		if ticket.Status == "ok" {
			result.Accepted++
			continue
		}
		result.TicketErrors = append(result.TicketErrors, TicketError{
			Token:   messages[i].To,
			Code:    ticket.Details.Error,
			Message: ticket.Message,
		})
	}
	s.logger.Debug("Expo batch accepted",
		"messages", len(messages), "ticket_errors", len(result.TicketErrors))
	return result, nil
}
