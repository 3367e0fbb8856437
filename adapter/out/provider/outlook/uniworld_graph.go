// Package outlook is a thin Microsoft Graph client for mail sending.
package outlook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

const defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// APIError carries the Graph status code so callers can classify it.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph API error: %d - %s", e.StatusCode, e.Body)
}

// Client calls the Graph REST API with a caller-supplied bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Graph client. baseURL overrides the production
// endpoint when non-empty.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

// ===========================================================================
// Graph types
// ===========================================================================

type graphUser struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Message is the Graph sendMail message shape.
type Message struct {
	Subject      string      `json:"subject"`
	Body         Body        `json:"body"`
	ToRecipients []Recipient `json:"toRecipients"`
}

type Body struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

type EmailAddress struct {
	Address string `json:"address"`
}

// NewMessage builds a single-recipient sendMail message.
func NewMessage(to, subject, body string, isHTML bool) Message {
	contentType := "text"
	if isHTML {
		contentType = "html"
	}
	return Message{
		Subject: subject,
		Body:    Body{ContentType: contentType, Content: body},
		ToRecipients: []Recipient{
			{EmailAddress: EmailAddress{Address: to}},
		},
	}
}

// ===========================================================================
// Operations
// ===========================================================================

// SendMail posts to /me/sendMail. Graph answers 202 with an empty
// body on success and returns no message id.
func (c *Client) SendMail(ctx context.Context, accessToken string, msg Message) error {
	body := struct {
		Message         Message `json:"message"`
		SaveToSentItems bool    `json:"saveToSentItems"`
	}{
		Message:         msg,
		SaveToSentItems: true,
	}
	return c.post(ctx, accessToken, "/me/sendMail", body, nil)
}

// ProfileEmail resolves the signed-in account's address.
func (c *Client) ProfileEmail(ctx context.Context, accessToken string) (string, error) {
	var user graphUser
	if err := c.get(ctx, accessToken, "/me", &user); err != nil {
		return "", err
	}
	if user.Mail != "" {
		return user.Mail, nil
	}
	// Personal accounts often leave mail empty.
	return user.UserPrincipalName, nil
}

// ===========================================================================
// Request plumbing
// ===========================================================================

func (c *Client) get(ctx context.Context, accessToken, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doRequest(req, accessToken, result)
}

func (c *Client) post(ctx context.Context, accessToken, path string, body, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doRequest(req, accessToken, result)
}

func (c *Client) doRequest(req *http.Request, accessToken string, result interface{}) error {
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusAccepted {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}
