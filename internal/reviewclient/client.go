// Package reviewclient is a Go client for the evaluation API together with
// the reviewer-side state machine and a bulk import runner.
package reviewclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/geneva/internal/domain/model"
	"github.com/rotisserie/eris"
)

const defaultTimeout = 30 * time.Second

// Client calls the evaluation API. It never retries; a failed call is
// reported and left to the caller.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption applies a configuration option to the Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout on a copy of the HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// NewClient creates a client for the server at baseURL, e.g. "http://localhost:3000".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionUpload is the dataset content used to resolve a session.
type SessionUpload struct {
	EvaluatorID     string          `json:"evaluatorId"`
	DetailedContent string          `json:"detailedContent"`
	SummaryContent  string          `json:"summaryContent"`
	Filenames       model.Filenames `json:"filenames"`
}

// Resolved is the server's answer to a session upload.
type Resolved struct {
	Session     model.Session      `json:"session"`
	Evaluations []model.Evaluation `json:"evaluations"`
	Created     bool               `json:"created"`
}

// Health checks the server is reachable. Any transport failure or non-2xx
// answer is reported as ErrServerUnreachable.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &out); err != nil {
		return eris.Wrapf(ErrServerUnreachable, "%s: %v", c.baseURL, err)
	}
	if out.Status != "ok" {
		return eris.Wrapf(ErrServerUnreachable, "%s: status %q", c.baseURL, out.Status)
	}
	return nil
}

// Login registers or recalls an evaluator.
func (c *Client) Login(ctx context.Context, evaluatorID, name, email string) (*model.Evaluator, error) {
	in := map[string]string{"evaluatorId": evaluatorID, "name": name, "email": email}
	var out struct {
		Evaluator model.Evaluator `json:"evaluator"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", in, &out); err != nil {
		return nil, err
	}
	return &out.Evaluator, nil
}

// ResolveSession uploads dataset content and returns the matching session.
func (c *Client) ResolveSession(ctx context.Context, up SessionUpload) (*Resolved, error) {
	var out Resolved
	if err := c.do(ctx, http.MethodPost, "/api/session", up, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession returns a session and its evaluations.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*model.Session, []model.Evaluation, error) {
	var out struct {
		Session     model.Session      `json:"session"`
		Evaluations []model.Evaluation `json:"evaluations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/session/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, nil, err
	}
	return &out.Session, out.Evaluations, nil
}

// ListSessions returns an evaluator's sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, evaluatorID string) ([]model.Session, error) {
	var out struct {
		Sessions []model.Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(evaluatorID), nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// SaveEvaluation submits the complete state of one evaluation.
func (c *Client) SaveEvaluation(ctx context.Context, sessionID string, in model.EvaluationInput) (int64, error) {
	body := struct {
		SessionID  string                `json:"sessionId"`
		Evaluation model.EvaluationInput `json:"evaluation"`
	}{sessionID, in}
	var out struct {
		EvaluationID int64 `json:"evaluationId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/evaluation", body, &out); err != nil {
		return 0, err
	}
	return out.EvaluationID, nil
}

// ListEvaluations returns the evaluations stored for a session.
func (c *Client) ListEvaluations(ctx context.Context, sessionID string) ([]model.Evaluation, error) {
	var out struct {
		Evaluations []model.Evaluation `json:"evaluations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/evaluations/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return out.Evaluations, nil
}

// Export downloads one evaluator's CSV and its suggested filename.
func (c *Client) Export(ctx context.Context, evaluatorID string) (string, []byte, error) {
	return c.download(ctx, "/api/export/"+url.PathEscape(evaluatorID))
}

// ExportAll downloads the global CSV and its suggested filename.
func (c *Client) ExportAll(ctx context.Context) (string, []byte, error) {
	return c.download(ctx, "/api/export-all")
}

func (c *Client) download(ctx context.Context, path string) (string, []byte, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, eris.Wrapf(ErrServerUnreachable, "read %s: %v", path, err)
	}
	if resp.StatusCode/100 != 2 {
		return "", nil, apiError(resp.StatusCode, body)
	}
	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	return name, body, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "encode request")
		}
		payload = bytes.NewReader(b)
	}
	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(ErrServerUnreachable, "read %s: %v", path, err)
	}
	if resp.StatusCode/100 != 2 {
		return apiError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return eris.Wrapf(json.Unmarshal(body, out), "decode %s", path)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(ErrServerUnreachable, "%s %s: %v", method, path, err)
	}
	return resp, nil
}

func apiError(status int, body []byte) error {
	e := &APIError{Status: status, Message: http.StatusText(status)}
	var wire struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Details string `json:"details"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Error != "" {
		e.Message, e.Code, e.Details = wire.Error, wire.Code, wire.Details
	}
	return e
}
