// Package client submits instruction batches to a running command server.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/radio-control/commandd/internal/server"
)

// DefaultTimeout bounds a whole submission round trip.
const DefaultTimeout = 60 * time.Second

var ErrEmptySubmission = errors.New("submission has no instructions")

// Instruction is one entry of a submission.
type Instruction struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}

// Submission is the request body accepted by the command server.
type Submission struct {
	Instructions []Instruction `json:"instructions"`
}

// StatusError is returned for non-200 answers. Envelope is zero when the
// body was not an error envelope.
type StatusError struct {
	Status   int
	Envelope server.ErrorEnvelope
	Body     []byte
}

func (e *StatusError) Error() string {
	if e.Envelope.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s (correlationId %s)",
			e.Status, e.Envelope.Code, e.Envelope.Message, e.Envelope.CorrelationID)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client posts submissions to one command server URL.
type Client struct {
	url  string
	http *http.Client
}

// New creates a client for url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit encodes sub and posts it. The returned body is the raw JSON value a
// handler responded with.
func (c *Client) Submit(ctx context.Context, sub Submission) (json.RawMessage, error) {
	if len(sub.Instructions) == 0 {
		return nil, ErrEmptySubmission
	}
	for i := range sub.Instructions {
		if sub.Instructions[i].Args == nil {
			sub.Instructions[i].Args = []any{}
		}
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}
	return c.SubmitRaw(ctx, body)
}

// SubmitRaw posts an already encoded body unchanged.
func (c *Client) SubmitRaw(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", server.ContentType)
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post submission: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Status: resp.StatusCode, Body: data}
		_ = json.Unmarshal(data, &se.Envelope)
		return nil, se
	}
	return json.RawMessage(data), nil
}

// ParseInstruction parses the command line form name[:arg,arg...]. Each
// argument is decoded as JSON when possible and kept as a string otherwise.
func ParseInstruction(s string) (Instruction, error) {
	name, rest, hasArgs := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return Instruction{}, fmt.Errorf("instruction %q has no name", s)
	}

	ins := Instruction{Name: name, Args: []any{}}
	if !hasArgs || rest == "" {
		return ins, nil
	}
	for _, raw := range strings.Split(rest, ",") {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		ins.Args = append(ins.Args, v)
	}
	return ins, nil
}
