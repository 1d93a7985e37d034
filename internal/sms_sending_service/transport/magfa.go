package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

var carrierRequestDurationHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sms_sending",
		Name:      "carrier_request_duration_seconds",
		Help:      "Duration of HTTP requests to carrier APIs.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"transport", "outcome"},
)

// MagfaSendRequestBody is the body of Magfa's send endpoint.
type MagfaSendRequestBody struct {
	Messages []MagfaMessage `json:"messages"`
}

type MagfaMessage struct {
	Sender     string   `json:"sender"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
}

type MagfaSendSuccessResponse struct {
	Messages []MagfaSentMessageDetail `json:"messages"`
	Status   int                      `json:"status"`
	Message  string                   `json:"message"`
}

// MagfaSentMessageDetail is the per-recipient outcome. Status 0 means accepted.
type MagfaSentMessageDetail struct {
	ID        int64  `json:"id"`
	Recipient string `json:"recipient"`
	Status    int    `json:"status"`
	Message   string `json:"message"`
}

type MagfaErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// MagfaTransport posts messages to the Magfa HTTP API, all recipients in one request.
type MagfaTransport struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	apiKey     string
	senderID   string
}

// NewMagfaTransport builds the transport. senderID is used when the message
// carries no sender of its own.
func NewMagfaTransport(logger *slog.Logger, apiURL, apiKey, senderID string, httpClient *http.Client) *MagfaTransport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &MagfaTransport{
		logger:     logger.With("transport", "magfa"),
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
		senderID:   senderID,
	}
}

func (t *MagfaTransport) Send(ctx context.Context, message *domain.Message) (*SendResult, error) {
	recipients := message.Numbers()
	sender := t.senderID
	if from := message.From(); len(from) > 0 {
		sender = from[0].Number
	}

	reqBytes, err := json.Marshal(MagfaSendRequestBody{
		Messages: []MagfaMessage{{Sender: sender, Body: message.Body(), Recipients: recipients}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request for Magfa: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request for Magfa: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	start := time.Now()
	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		carrierRequestDurationHist.WithLabelValues("magfa", "transport_error").Observe(time.Since(start).Seconds())
		t.logger.ErrorContext(ctx, "Failed to send request to Magfa", "error", err)
		return nil, fmt.Errorf("failed to send request to Magfa: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		carrierRequestDurationHist.WithLabelValues("magfa", "read_error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("Magfa API request failed (status %d), and failed to read response body: %w", httpResp.StatusCode, err)
	}
	t.logger.DebugContext(ctx, "Received HTTP response from Magfa", "status_code", httpResp.StatusCode, "body", string(respBody))

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		carrierRequestDurationHist.WithLabelValues("magfa", "rejected").Observe(time.Since(start).Seconds())
		errMsg := fmt.Sprintf("Magfa API error: status %d", httpResp.StatusCode)
		var errResp MagfaErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			errMsg = fmt.Sprintf("Magfa API error: status %d, message: %s", httpResp.StatusCode, errResp.Message)
		}
		t.logger.WarnContext(ctx, "Magfa send failed", "status_code", httpResp.StatusCode, "error", errMsg)
		return nil, errors.New(errMsg)
	}
	carrierRequestDurationHist.WithLabelValues("magfa", "ok").Observe(time.Since(start).Seconds())

	result := &SendResult{Accepted: len(recipients)}
	var success MagfaSendSuccessResponse
	if err := json.Unmarshal(respBody, &success); err != nil {
		// Delivered as far as HTTP is concerned; per-recipient detail is unavailable.
		t.logger.WarnContext(ctx, "Magfa accepted the request but the response could not be parsed", "error", err)
		return result, nil
	}
	for _, detail := range success.Messages {
		if detail.Status != 0 {
			result.FailedRecipients = append(result.FailedRecipients, detail.Recipient)
		}
	}
	result.Accepted -= len(result.FailedRecipients)
	t.logger.InfoContext(ctx, "Sent SMS via Magfa", "recipients", len(recipients), "failed", len(result.FailedRecipients))
	return result, nil
}
