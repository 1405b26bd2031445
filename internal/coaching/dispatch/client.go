// Package dispatch sends review texts to salespeople through the reviews
// service and runs bounded batches of sends.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dealer_coach_backend/platform/apperr"
)

// Review is one outbound message.
type Review struct {
	ManagerID     string
	SalespersonID string
	Text          string
}

// Result is the collaborator's answer for one review.
type Result struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// Dispatcher sends a single review. A transport failure is reported through
// the error; a rejected review through Result.Success.
type Dispatcher interface {
	Send(ctx context.Context, r Review) (Result, error)
}

// ReviewClient posts reviews to {baseURL}/api/reviews.
type ReviewClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewReviewClient creates a client. A zero timeout means 10 seconds.
func NewReviewClient(baseURL string, timeout time.Duration) *ReviewClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ReviewClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send posts one review. 200 and 201 count as success; other statuses are a
// failed result carrying the response body.
func (c *ReviewClient) Send(ctx context.Context, r Review) (Result, error) {
	payload := map[string]any{
		"manager_id":     idValue(r.ManagerID),
		"salesperson_id": idValue(r.SalespersonID),
		"review_text":    r.Text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encode review: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/reviews", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build review request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, apperr.Dispatch("review request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(respBody))
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return Result{Success: true, Detail: detail}, nil
	}
	if detail == "" {
		detail = resp.Status
	}
	return Result{Success: false, Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, detail)}, nil
}

// idValue sends numeric ids as JSON integers.
func idValue(id string) any {
	if n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err == nil {
		return n
	}
	return id
}
