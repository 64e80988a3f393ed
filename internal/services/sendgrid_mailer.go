package services

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

	"github.com/google/uuid"
)

const sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

type SendGridMailer struct {
	APIKey     string
	FromEmail  string
	FromName   string
	HTTPClient *http.Client
	Endpoint   string
}

func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
	return &SendGridMailer{
		APIKey:    strings.TrimSpace(apiKey),
		FromEmail: strings.TrimSpace(fromEmail),
		FromName:  strings.TrimSpace(fromName),
		Endpoint:  sendGridEndpoint,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendGridEmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To         []sendGridEmailAddress `json:"to"`
	Subject    string                 `json:"subject"`
	CustomArgs map[string]string      `json:"custom_args,omitempty"`
}

type sendGridMailSendRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridEmailAddress      `json:"from"`
	Content          []sendGridContent         `json:"content"`
}

// Send delivers msg in one mail/send call with every recipient in a single
// personalization.
func (m *SendGridMailer) Send(ctx context.Context, msg EmailMessage) error {
	if m == nil {
		return errors.New("sendgrid mailer not configured")
	}
	if m.APIKey == "" {
		return errors.New("missing SENDGRID_API_KEY")
	}
	if m.FromEmail == "" {
		return errors.New("missing NOTIFY_FROM_EMAIL")
	}
	if len(msg.To) == 0 {
		return errors.New("no recipients")
	}

	to := make([]sendGridEmailAddress, 0, len(msg.To))
	for _, r := range msg.To {
		to = append(to, sendGridEmailAddress{Email: r.Email, Name: strings.TrimSpace(r.Name)})
	}

	customArgs := map[string]string{"notification_id": uuid.NewString()}
	for k, v := range msg.Tags {
		customArgs[k] = v
	}

	reqBody := sendGridMailSendRequest{
		Personalizations: []sendGridPersonalization{
			{
				To:         to,
				Subject:    msg.Subject,
				CustomArgs: customArgs,
			},
		},
		From: sendGridEmailAddress{
			Email: m.FromEmail,
			Name:  m.FromName,
		},
		Content: []sendGridContent{
			{Type: "text/html", Value: msg.HTML},
		},
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	endpoint := m.Endpoint
	if endpoint == "" {
		endpoint = sendGridEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode != http.StatusAccepted {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sendgrid mail send http %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
