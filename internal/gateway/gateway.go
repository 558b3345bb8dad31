// Package gateway is the client for the remote authentication and
// enrollment service.
//
// Each call is a single round trip with no retry. Every failure is returned
// as an *Error whose Message is safe to show to the user: the service's own
// message when it sent one, GenericMessage otherwise.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GenericMessage is shown when the service could not be reached or sent
// something unreadable.
const GenericMessage = "Unable to reach the authentication server. Please check your connection and try again."

// DefaultTimeout bounds a single round trip.
const DefaultTimeout = 30 * time.Second

const maxResponseBytes = 32 << 20

// Error is a failed service call.
type Error struct {
	Status  int    // HTTP status, 0 for transport failures
	Message string // user-facing message
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s: %v", e.Message, e.Err)
	}
	return "gateway: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage renders any error for display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return GenericMessage
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the authentication service.
type Client struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client for the service at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("gateway: unsupported scheme %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		base:    base,
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		logger:  cfg.Logger.With("component", "gateway"),
	}, nil
}

// SubmitLogin sends one still for identification.
func (c *Client) SubmitLogin(ctx context.Context, image []byte) (*LoginResult, error) {
	res, err := postJSON[LoginResult](ctx, c, "login", LoginRequest{Image: DataURL(image)})
	if err != nil {
		c.logger.Info("login rejected", "error", err)
		return nil, err
	}
	c.logger.Info("login accepted", "user_id", res.UserID)
	return res, nil
}

// SubmitRegistration sends the captured samples with the profile.
func (c *Client) SubmitRegistration(ctx context.Context, images [][]byte, p Profile) (*RegistrationResult, error) {
	req := RegistrationRequest{Profile: p.Normalize(), Images: make([]string, len(images))}
	for i, img := range images {
		req.Images[i] = DataURL(img)
	}

	res, err := postJSON[RegistrationResult](ctx, c, "register", req)
	if err != nil {
		c.logger.Info("registration rejected", "error", err)
		return nil, err
	}
	c.logger.Info("registration accepted", "user_id", res.UserID, "photos", res.TrainingPhotos)
	return res, nil
}

// Logout records a logout. The call is fire-and-forget: it returns at once
// and the outcome is delivered on the returned channel, which callers may
// ignore.
func (c *Client) Logout(userID, name string) <-chan error {
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		_, err := postJSON[Envelope](ctx, c, "logout", LogoutRequest{UserID: userID, Name: name})
		if err != nil {
			c.logger.Warn("logout not recorded", "name", name, "error", err)
		}
		done <- err
	}()
	return done
}

// postJSON performs one POST round trip and decodes a T from a successful
// response.
func postJSON[T any](ctx context.Context, c *Client, endpoint string, body any) (*T, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Message: GenericMessage, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath(endpoint).String(), bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Message: GenericMessage, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Message: GenericMessage, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: GenericMessage, Err: fmt.Errorf("read response: %w", err)}
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{
			Status:  resp.StatusCode,
			Message: GenericMessage,
			Err:     fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = GenericMessage
		}
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: GenericMessage, Err: fmt.Errorf("decode result: %w", err)}
	}
	return &result, nil
}
