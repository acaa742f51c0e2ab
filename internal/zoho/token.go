package zoho

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"watchtower/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// reuseMargin keeps a cached token out of play once it is within five
// minutes of its declared expiry, matching Zoho's guidance on refresh
// timing.
const reuseMargin = 5 * time.Minute

// AuthError is returned when the refresh-token exchange fails for any
// reason: transport error, non-200 status, or a well-formed response that
// carries no usable token.
type AuthError struct {
	HTTPStatus int
	Cause      string
}

func (e *AuthError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("zoho token exchange failed %d: %s", e.HTTPStatus, e.Cause)
	}
	return fmt.Sprintf("zoho token exchange failed: %s", e.Cause)
}

// RefreshCredential is the long-lived secret set supplied by the
// environment. It is immutable for the process lifetime and never logged.
type RefreshCredential struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	RefreshToken string
}

// TokenCache optionally carries an access token across runs. A nil cache
// means every run performs a fresh exchange.
type TokenCache interface {
	Get(ctx context.Context) (*domain.Credential, error)
	Put(ctx context.Context, cred *domain.Credential) error
}

// TokenClient exchanges the refresh credential for a short-lived access
// token at the Zoho accounts token endpoint.
type TokenClient struct {
	client   *http.Client
	tokenURL string
	creds    RefreshCredential
	cache    TokenCache
	tracer   trace.Tracer
	now      func() time.Time
}

func NewTokenClient(tracer trace.Tracer, tokenURL string, creds RefreshCredential, timeout time.Duration, cache TokenCache) *TokenClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TokenClient{
		client:   &http.Client{Timeout: timeout},
		tokenURL: tokenURL,
		creds:    creds,
		cache:    cache,
		tracer:   tracer,
		now:      time.Now,
	}
}

// ObtainAccessToken returns a credential valid for the rest of this run.
// A cached token is reused only while comfortably inside its lifetime;
// otherwise a refresh_token grant is performed and the result re-cached.
func (c *TokenClient) ObtainAccessToken(ctx context.Context) (*domain.Credential, error) {
	_, span := c.tracer.Start(ctx, "zoho.obtain-access-token")
	defer span.End()

	if c.cache != nil {
		cached, err := c.cache.Get(ctx)
		if err != nil {
			log.Printf("token cache read error: %v", err)
		}
		if cached.Usable(c.now(), reuseMargin) {
			return cached, nil
		}
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
		"redirect_uri":  {c.creds.RedirectURI},
		"refresh_token": {c.creds.RefreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Cause: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &AuthError{Cause: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &AuthError{HTTPStatus: resp.StatusCode, Cause: strings.TrimSpace(string(body))}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &AuthError{HTTPStatus: resp.StatusCode, Cause: fmt.Sprintf("decode token response: %v", err)}
	}

	// Zoho reports some failures as HTTP 200 with an error field.
	if payload.Error != "" {
		return nil, &AuthError{HTTPStatus: resp.StatusCode, Cause: payload.Error}
	}
	if payload.AccessToken == "" {
		return nil, &AuthError{HTTPStatus: resp.StatusCode, Cause: "response has no access_token"}
	}
	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = 3600
	}

	cred := &domain.Credential{
		AccessToken: payload.AccessToken,
		ExpiresAt:   c.now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, cred); err != nil {
			log.Printf("token cache write error: %v", err)
		}
	}
	return cred, nil
}
