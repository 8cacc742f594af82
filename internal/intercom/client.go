package intercom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"support-widget/internal/credential"
)

const (
	DefaultBaseURL    = "https://api.intercom.io"
	DefaultAPIVersion = "2.11"
)

// Client is a thin HTTP client for the Intercom REST API. It resolves the
// access token on every call and never retries; callers own retry policy.
type Client struct {
	baseURL     string
	apiVersion  string
	credentials credential.Source
	httpClient  *http.Client
	logger      *slog.Logger
}

type Options struct {
	BaseURL     string
	APIVersion  string
	Credentials credential.Source
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiVersion:  opts.APIVersion,
		credentials: opts.Credentials,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient(30 * time.Second)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// NewHTTPClient returns a pooled HTTP client whose overall timeout bounds
// every provider call.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// FindContactByEmail returns the first contact with the given email, or nil
// when the provider has none.
func (c *Client) FindContactByEmail(ctx context.Context, email string) (*Contact, error) {
	var list ContactList
	path := "/contacts?email=" + url.QueryEscape(email)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	contact := list.Data[0]
	return &contact, nil
}

func (c *Client) CreateContact(ctx context.Context, req CreateContactRequest) (*Contact, error) {
	var contact Contact
	if _, err := c.do(ctx, http.MethodPost, "/contacts", req, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// CreateConversation opens a conversation authored by the contact. When the
// provider answers with a receipt instead of the document, the conversation
// is read back so callers always receive the full representation.
func (c *Client) CreateConversation(ctx context.Context, contactID, body string) (*Conversation, error) {
	req := createConversationRequest{
		From: conversationFrom{Type: "user", ID: contactID},
		Body: body,
	}
	var conv Conversation
	raw, err := c.do(ctx, http.MethodPost, "/conversations", req, &conv)
	if err != nil {
		return nil, err
	}
	// A receipt carries its own message id in ID; only conversation_id
	// names the conversation.
	if conv.ConversationID != "" {
		return c.GetConversation(ctx, conv.ConversationID)
	}
	conv.Raw = raw
	return &conv, nil
}

func (c *Client) ReplyToConversation(ctx context.Context, conversationID, contactID, body string) error {
	req := replyRequest{Type: "comment", UserID: contactID, Body: body}
	path := "/conversations/" + url.PathEscape(conversationID) + "/parts"
	_, err := c.do(ctx, http.MethodPost, path, req, nil)
	return err
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	raw, err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID), nil, &conv)
	if err != nil {
		return nil, err
	}
	conv.Raw = raw
	return &conv, nil
}

type errorList struct {
	Type   string `json:"type"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// do builds the request, attaches auth and decodes the JSON response into
// result. It returns the raw response body on success.
func (c *Client) do(ctx context.Context, method, path string, body, result any) ([]byte, error) {
	token, err := credential.Require(c.credentials)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Intercom-Version", c.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("intercom request failed", "method", method, "path", path, "error", err)
		return nil, &UpstreamError{Method: method, Path: path, Err: err}
	}
	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	c.logger.Debug("intercom request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))
	if readErr != nil {
		return nil, &UpstreamError{Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("reading response body: %w", readErr)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upErr := &UpstreamError{Method: method, Path: path, Status: resp.StatusCode, Body: string(respBody)}
		var list errorList
		if json.Unmarshal(respBody, &list) == nil && len(list.Errors) > 0 {
			msgs := make([]string, 0, len(list.Errors))
			for _, e := range list.Errors {
				msgs = append(msgs, e.Message)
			}
			upErr.Err = errors.New(strings.Join(msgs, "; "))
		}
		return nil, upErr
	}

	if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return respBody, nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return nil, &UpstreamError{Method: method, Path: path, Status: resp.StatusCode, Body: string(respBody), Err: fmt.Errorf("unmarshaling response: %w", err)}
	}
	return respBody, nil
}
