package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/models"
)

const (
	AccessCookie  = "sb-access-token"
	RefreshCookie = "sb-refresh-token"

	refreshCookieMaxAge = 30 * 24 * 60 * 60
)

var errRefreshRejected = errors.New("refresh token rejected")

// Resolver returns the session user for a request, or nil when there is
// none. It may write refreshed cookies to w. An error means the auth service
// could not be consulted.
type Resolver interface {
	Resolve(w http.ResponseWriter, r *http.Request) (*models.User, error)
}

type SupabaseConfig struct {
	URL       string
	AnonKey   string
	JWTSecret string
	// RefreshWindow is how close to expiry an access token gets refreshed.
	RefreshWindow time.Duration
}

// SupabaseClient verifies access tokens locally and refreshes them against
// the hosted auth API.
type SupabaseClient struct {
	baseURL       string
	anonKey       string
	secret        []byte
	refreshWindow time.Duration
	client        *http.Client
	logger        *zap.Logger
	now           func() time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func NewSupabaseClient(cfg SupabaseConfig, client *http.Client, logger *zap.Logger) *SupabaseClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	window := cfg.RefreshWindow
	if window <= 0 {
		window = time.Minute
	}
	return &SupabaseClient{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		anonKey:       cfg.AnonKey,
		secret:        []byte(cfg.JWTSecret),
		refreshWindow: window,
		client:        client,
		logger:        logger,
		now:           time.Now,
	}
}

func (c *SupabaseClient) Resolve(w http.ResponseWriter, r *http.Request) (*models.User, error) {
	var current *models.User
	if token, ok := readCookie(r, AccessCookie); ok {
		user, exp, err := c.verify(token)
		if err == nil {
			if exp.Sub(c.now()) > c.refreshWindow {
				return user, nil
			}
			current = user
		} else if !errors.Is(err, jwt.ErrTokenExpired) {
			c.logger.Debug("invalid access token", zap.Error(err))
		}
	}

	refreshToken, ok := readCookie(r, RefreshCookie)
	if !ok || c.baseURL == "" {
		return current, nil
	}

	session, err := c.refresh(r.Context(), refreshToken)
	if errors.Is(err, errRefreshRejected) {
		clearCookies(w, r)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	writeCookies(w, r, session)
	return &models.User{ID: session.User.ID, Email: session.User.Email}, nil
}

// errNoSecret rejects every access token when no signing secret is configured.
var errNoSecret = errors.New("auth: jwt secret is not configured")

func (c *SupabaseClient) verify(token string) (*models.User, time.Time, error) {
	if len(c.secret) == 0 {
		return nil, time.Time{}, errNoSecret
	}
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, time.Time{}, err
	}
	if claims.Subject == "" {
		return nil, time.Time{}, errors.New("access token has no subject")
	}
	return &models.User{ID: claims.Subject, Email: claims.Email}, claims.ExpiresAt.Time, nil
}

func (c *SupabaseClient) refresh(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/v1/token?grant_type=refresh_token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: refresh session: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, errRefreshRejected
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("auth: refresh session: unexpected status %d", resp.StatusCode)
	}

	var session tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("auth: decode session: %w", err)
	}
	if session.AccessToken == "" || session.User.ID == "" {
		return nil, errors.New("auth: refresh returned an empty session")
	}
	return &session, nil
}

func readCookie(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	return value, value != ""
}

func writeCookies(w http.ResponseWriter, r *http.Request, s *tokenResponse) {
	secure := isHTTPS(r)
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookie,
		Value:    s.AccessToken,
		Path:     "/",
		MaxAge:   s.ExpiresIn,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	if s.RefreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     RefreshCookie,
			Value:    s.RefreshToken,
			Path:     "/",
			MaxAge:   refreshCookieMaxAge,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func clearCookies(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   isHTTPS(r),
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
