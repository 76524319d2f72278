// Package salesforce implements records.Source against the Salesforce REST
// API using the OAuth 2.0 username-password flow.
package salesforce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"records-rag/internal/config"
	"records-rag/internal/models"
	"records-rag/internal/records"
)

var _ records.Source = (*Client)(nil)

// APIError is a non-success response from the REST API.
type APIError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("salesforce: API error %d: %s (URL: %s)", e.StatusCode, e.Body, e.URL)
}

// Client talks to one Salesforce org.
type Client struct {
	cfg     config.SalesforceConfig
	ts      oauth2.TokenSource
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a client. No request is made until the first call.
func New(ctx context.Context, cfg config.SalesforceConfig) *Client {
	base := &http.Client{Timeout: cfg.Timeout}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, base)

	ts := oauth2.ReuseTokenSource(nil, &passwordSource{
		ctx: tokenCtx,
		conf: &oauth2.Config{
			ClientID:     cfg.ConsumerKey,
			ClientSecret: cfg.ConsumerSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimRight(cfg.LoginURL, "/") + "/services/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		username: cfg.Username,
		password: cfg.Password,
		ttl:      cfg.SessionTTL,
	})

	return &Client{
		cfg: cfg,
		ts:  ts,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// passwordSource obtains sessions with the username-password grant.
// Salesforce omits expires_in for this grant, so the session TTL is set
// from config and the reuse wrapper logs in again once it passes.
type passwordSource struct {
	ctx                context.Context
	conf               *oauth2.Config
	username, password string
	ttl                time.Duration
}

func (s *passwordSource) Token() (*oauth2.Token, error) {
	tok, err := s.conf.PasswordCredentialsToken(s.ctx, s.username, s.password)
	if err != nil {
		return nil, fmt.Errorf("%w: login: %w", models.ErrConnectivity, err)
	}
	if tok.Expiry.IsZero() && s.ttl > 0 {
		tok.Expiry = time.Now().Add(s.ttl)
	}
	log.Debug().Str("instance_url", instanceURL(tok)).Msg("Salesforce session established")
	return tok, nil
}

func instanceURL(tok *oauth2.Token) string {
	v, _ := tok.Extra("instance_url").(string)
	return strings.TrimRight(v, "/")
}

func (c *Client) instance() (string, error) {
	tok, err := c.ts.Token()
	if err != nil {
		return "", err
	}
	u := instanceURL(tok)
	if u == "" {
		return "", fmt.Errorf("%w: token response has no instance_url", models.ErrConnectivity)
	}
	return u, nil
}

func (c *Client) apiPath(path string) string {
	return "/services/data/v" + c.cfg.APIVersion + path
}

// get performs a rate-limited GET. Relative paths are resolved against the
// org's instance URL.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := path
	if strings.HasPrefix(path, "/") {
		base, err := c.instance()
		if err != nil {
			return nil, err
		}
		url = base + path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, models.ErrConnectivity) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", models.ErrConnectivity, err)
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body), URL: url}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %w", models.ErrNotFound, apiErr)
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %w", models.ErrConnectivity, apiErr)
	default:
		return nil, apiErr
	}
}
