package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// DefaultResendURL is the Resend send-email endpoint.
const DefaultResendURL = "https://api.resend.com/emails"

// ResendSender sends through the Resend HTTP API.
type ResendSender struct {
	url    string
	apiKey string
	from   string
	client *http.Client
}

func NewResendSender(url, apiKey, from string, timeout time.Duration) *ResendSender {
	if url == "" {
		url = DefaultResendURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ResendSender{url: url, apiKey: apiKey, from: from, client: &http.Client{Timeout: timeout}}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (s *ResendSender) Send(ctx context.Context, to, subject, html string) error {
	body, err := json.Marshal(resendRequest{From: s.from, To: []string{to}, Subject: subject, HTML: html})
	if err != nil {
		return errors.Wrap(err, "marshal resend request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build resend request")
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "resend request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("resend: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
