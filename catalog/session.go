// Package catalog is the client for the remote catalog server: one
// authenticated session per pipeline run, name-to-id resolution over cached
// per-kind listings, and the datasource publish call.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session owns one authenticated connection to the catalog server. Listings
// are cached for the session lifetime and invalidated only by teardown.
type Session struct {
	serverURL  string
	siteID     string
	httpClient *http.Client
	logger     *zap.Logger

	token    string
	siteLUID string

	mu       sync.Mutex
	listings map[Kind][]Entity

	signOutOnce sync.Once
}

// SessionOption configures a Session before sign-in.
type SessionOption func(*Session)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) SessionOption {
	return func(s *Session) { s.httpClient = hc }
}

type signInRequest struct {
	Site        string `json:"site"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	TokenID     string `json:"tokenId,omitempty"`
	TokenSecret string `json:"tokenSecret,omitempty"`
}

type signInResponse struct {
	Token  string `json:"token"`
	SiteID string `json:"siteId"`
}

// Connect signs in to the catalog server and returns a live session. The
// username/password pair takes precedence when both pairs are complete;
// neither pair complete is ErrMissingCredentials, a server rejection is
// an *AuthError.
func Connect(ctx context.Context, serverURL, siteID string, creds Credentials, logger *zap.Logger, opts ...SessionOption) (*Session, error) {
	if !creds.Complete() {
		return nil, ErrMissingCredentials
	}

	s := &Session{
		serverURL:  serverURL,
		siteID:     siteID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		listings:   make(map[Kind][]Entity),
	}
	for _, opt := range opts {
		opt(s)
	}

	body := signInRequest{Site: siteID}
	if creds.HasUserPair() {
		logger.Info("authenticating with username", zap.String("username", creds.Username))
		body.Username = creds.Username
		body.Password = creds.Password
	} else {
		logger.Info("authenticating with access token", zap.String("token_id", creds.TokenID))
		body.TokenID = creds.TokenID
		body.TokenSecret = creds.TokenSecret
	}

	var signedIn signInResponse
	if err := s.postJSON(ctx, "/api/auth/signin", body, &signedIn); err != nil {
		return nil, err
	}
	s.token = signedIn.Token
	s.siteLUID = signedIn.SiteID

	logger.Debug("authenticated and obtained catalog API token")
	return s, nil
}

// SiteID returns the site's content URL as configured.
func (s *Session) SiteID() string {
	return s.siteID
}

// SiteLUID returns the site's stable identifier as reported at sign-in.
func (s *Session) SiteLUID() string {
	return s.siteLUID
}

// ServerInfo fetches and logs the server's version information.
func (s *Session) ServerInfo(ctx context.Context) error {
	var info struct {
		ProductVersion string `json:"productVersion"`
		APIVersion     string `json:"apiVersion"`
		BuildNumber    string `json:"buildNumber"`
	}
	if err := s.getJSON(ctx, "/api/serverinfo", &info); err != nil {
		return fmt.Errorf("failed to fetch server info: %w", err)
	}
	s.logger.Info("catalog server info",
		zap.String("endpoint", s.serverURL),
		zap.String("server_version", info.ProductVersion),
		zap.String("api_version", info.APIVersion),
		zap.String("build", info.BuildNumber))
	return nil
}

// SignOut tears the session down. It is attempted once; failures are logged
// and swallowed so teardown never blocks shutdown.
func (s *Session) SignOut() {
	s.signOutOnce.Do(func() {
		s.logger.Debug("signing out of catalog session")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.postJSON(ctx, "/api/auth/signout", struct{}{}, nil); err != nil {
			s.logger.Debug("unable to sign out of catalog session", zap.Error(err))
		}
		s.mu.Lock()
		s.listings = make(map[Kind][]Entity)
		s.mu.Unlock()
	})
}

func (s *Session) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *Session) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return s.do(req, out)
}

func (s *Session) do(req *http.Request, out any) error {
	if s.token != "" {
		req.Header.Set("X-Auth-Token", s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &AuthError{Status: resp.StatusCode, Message: string(msg)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("catalog server returned status %d: %s", resp.StatusCode, string(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return nil
}
