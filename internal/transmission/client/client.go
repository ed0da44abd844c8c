// Package client talks to the regulatory endpoint. It classifies outcomes
// for the retry state machine but never retries on its own.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stampgate/internal/stamping/models"
)

// Submitter is the engine's view of the regulatory endpoint.
type Submitter interface {
	Submit(ctx context.Context, stamp models.CryptographicStamp) error
}

// SubmissionError is a rejected or failed submission. Transient failures
// drive the backoff state machine; the rest dead-letter immediately.
type SubmissionError struct {
	StatusCode int
	Message    string
	Transient  bool
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("endpoint returned %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// IsTransient reports whether the failure should consume a retry rather than
// dead-letter. Cancellation is neither: callers check ctx.Err first.
func IsTransient(err error) bool {
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return subErr.Transient
	}
	return false
}

type HTTP struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTP(baseURL, apiKey string, timeout time.Duration) *HTTP {
	return &HTTP{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// submission is the wire shape the endpoint accepts. Signature marshals as
// base64 per encoding/json's []byte convention.
type submission struct {
	IRNValue  string `json:"irn_value"`
	CSID      string `json:"csid"`
	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest"`
	Signature []byte `json:"signature"`
	QRPayload string `json:"qr_payload"`
}

func (c *HTTP) Submit(ctx context.Context, stamp models.CryptographicStamp) error {
	body, err := json.Marshal(submission{
		IRNValue:  stamp.IRNValue,
		CSID:      stamp.CSID.String(),
		Algorithm: stamp.Algorithm,
		Digest:    stamp.Digest,
		Signature: stamp.Signature,
		QRPayload: stamp.QRPayload,
	})
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation propagates untouched so the engine can tell it
			// apart from a timeout.
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
		}
		return &SubmissionError{Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &SubmissionError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(detail)),
		Transient:  transientStatus(resp.StatusCode),
	}
}

func transientStatus(code int) bool {
	switch {
	case code >= 500:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}
