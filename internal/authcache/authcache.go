// Package authcache resolves per-server authentication headers for outbound
// MCP requests and caches OAuth2 client-credentials tokens, coalescing
// concurrent refreshes for the same credential set.
package authcache

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/lumenai/conduit/internal/errkind"
	"github.com/lumenai/conduit/internal/infra"
)

// Kind discriminates the AuthConfig variants.
type Kind string

const (
	KindNone                    Kind = "none"
	KindBearer                  Kind = "bearer"
	KindBasic                   Kind = "basic"
	KindAPIKey                  Kind = "apiKey"
	KindOAuth2ClientCredentials Kind = "oauth2ClientCredentials"
)

// Config is the tagged union of supported MCP server auth variants. Only
// the fields relevant to Kind are populated.
type Config struct {
	Kind Kind

	// bearer
	Token string

	// basic
	Username string
	Password string

	// apiKey
	Header string
	Value  string

	// oauth2ClientCredentials. GrantType is always "client_credentials"
	// for this variant; the field exists so config validation can reject
	// an explicit mismatched value.
	AuthServerURL string
	Realm         string
	ClientID      string
	ClientSecret  string
	GrantType     string
}

// CachedToken is a bearer token value with its expiry. A token is only
// considered valid while at least safetyMargin remains before ExpiresAt.
type CachedToken struct {
	Value     string
	ExpiresAt time.Time
}

const safetyMargin = 30 * time.Second

// valid reports whether the token can still be served at now, honoring the
// 30s safety margin.
func (t CachedToken) valid(now time.Time) bool {
	return now.Before(t.ExpiresAt.Add(-safetyMargin))
}

// Cache resolves Authorization header values for MCP server requests and
// caches OAuth2 client-credentials tokens, coalescing concurrent refreshes
// for identical credential sets.
type Cache struct {
	logger *slog.Logger
	group  infra.Group[string, CachedToken]

	mu     sync.RWMutex
	tokens map[string]CachedToken
}

// New returns a ready-to-use Cache.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		logger: logger.With("component", "authcache"),
		tokens: make(map[string]CachedToken),
	}
}

// HeaderValue returns the header name and value to attach to requests
// against serverName, or ("", "", nil) when no header should be sent.
func (c *Cache) HeaderValue(ctx context.Context, cfg Config, serverName string) (header, value string, err error) {
	switch cfg.Kind {
	case "", KindNone:
		return "", "", nil

	case KindBearer:
		return "Authorization", "Bearer " + cfg.Token, nil

	case KindBasic:
		return "Authorization", basicAuthValue(cfg.Username, cfg.Password), nil

	case KindAPIKey:
		return cfg.Header, cfg.Value, nil

	case KindOAuth2ClientCredentials:
		tok, err := c.tokenFor(ctx, cfg, serverName)
		if err != nil {
			return "", "", err
		}
		return "Authorization", "Bearer " + tok.Value, nil

	default:
		return "", "", fmt.Errorf("%w: unknown auth kind %q", errkind.ErrValidation, cfg.Kind)
	}
}

// tokenFor returns a cached token for cfg, refreshing it through the
// single-flight group when absent or within the safety margin of expiry.
func (c *Cache) tokenFor(ctx context.Context, cfg Config, serverName string) (CachedToken, error) {
	key := fmt.Sprintf("%s@%s@%s", cfg.ClientID, cfg.Realm, cfg.AuthServerURL)

	if cached, ok := c.lookup(key); ok && cached.valid(time.Now()) {
		return cached, nil
	}

	tok, err, _ := c.group.Do(key, func() (CachedToken, error) {
		// Re-check: another goroutine may have refreshed while we queued.
		if cached, ok := c.lookup(key); ok && cached.valid(time.Now()) {
			return cached, nil
		}

		fresh, err := c.fetchToken(ctx, cfg)
		if err != nil {
			c.logger.Error("oauth2 token refresh failed", "server", serverName, "error", err)
			return CachedToken{}, fmt.Errorf("%w: %s", errkind.ErrAuthUnavailable, err)
		}

		c.mu.Lock()
		c.tokens[key] = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	return tok, err
}

func (c *Cache) lookup(key string) (CachedToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tok, ok := c.tokens[key]
	return tok, ok
}

func (c *Cache) fetchToken(ctx context.Context, cfg Config) (CachedToken, error) {
	ccCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL(cfg),
	}

	tok, err := ccCfg.Token(ctx)
	if err != nil {
		return CachedToken{}, err
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}
	return CachedToken{Value: tok.AccessToken, ExpiresAt: expiresAt}, nil
}

func tokenURL(cfg Config) string {
	return cfg.AuthServerURL + "/realms/" + cfg.Realm + "/protocol/openid-connect/token"
}

func basicAuthValue(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
