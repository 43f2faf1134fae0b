// Package authclient lets downstream services validate gatehouse session
// tokens over the network.
//
// The client fails closed: a missing cookie, a denied validation, a
// timeout, a transport error, or a malformed response all leave the request
// unauthenticated. Infrastructure failure is never promoted to identity.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/opsforge/gatehouse/pkg/observability"
)

// CookieName is the cookie carrying the session token, set by the
// authority's login flow.
const CookieName = "auth_token"

// ErrNotAuthenticated is returned when the authority explicitly denied the
// token, or no token was presented.
var ErrNotAuthenticated = errors.New("not authenticated")

// Identity is the validated-user record returned by the authority.
type Identity struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Client calls the authority's validation endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *observability.Logger
}

// New creates a validation client. timeout bounds each validation call,
// defaulting to one second; a validation that cannot finish inside the
// budget is a denial, not a hang.
func New(baseURL string, timeout time.Duration, logger *observability.Logger) *Client {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type validateResponse struct {
	Status string `json:"status"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// Validate asks the authority about one token. Only an HTTP 200 carrying
// status "ok" authenticates; every other outcome is a deny. No retries:
// a retry policy would have to fit inside the original request's budget,
// and one bounded attempt already spends most of it.
func (c *Client) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	endpoint := c.baseURL + "/api/validate?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build validation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("auth service unreachable")
		return nil, fmt.Errorf("validation call failed: %w", err)
	}
	defer resp.Body.Close()

	var body validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.logger.WithError(err).Error("malformed validation response")
		return nil, fmt.Errorf("malformed validation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		return nil, ErrNotAuthenticated
	}

	return &Identity{Name: body.Name, Role: body.Role}, nil
}

// ValidateRequest extracts the session token from the request cookie and
// validates it. A request without a cookie is denied without touching the
// network.
func (c *Client) ValidateRequest(r *http.Request) (*Identity, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	return c.Validate(r.Context(), cookie.Value)
}
