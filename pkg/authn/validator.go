package authn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpgateway/registry/pkg/log"
)

// Claims is the subset of a validated JWT's claims the gateway cares about.
type Claims struct {
	jwt.RegisteredClaims
	Groups         []string `json:"groups,omitempty"`
	CognitoGroups  []string `json:"cognito:groups,omitempty"`
	Name           string   `json:"name,omitempty"`
}

// Config configures a Validator.
type Config struct {
	JWKSURL         string
	Issuer          string
	Audience        string
	GroupsClaim     string        // default "groups"
	JWKSRefresh     time.Duration // refresh cached keys at least this often
	CacheCap        time.Duration // advisory token-cache TTL ceiling
	DisableCache    bool
}

// Validator verifies bearer JWTs against a JWKS endpoint (C2).
type Validator struct {
	cfg  Config
	jwks *keyfunc.JWKS

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	identity Identity
	expires  time.Time
}

// NewValidator fetches the JWKS document and starts its background refresh.
func NewValidator(cfg Config) (*Validator, error) {
	if cfg.GroupsClaim == "" {
		cfg.GroupsClaim = "groups"
	}
	if cfg.JWKSRefresh == 0 {
		cfg.JWKSRefresh = 15 * time.Minute
	}
	if cfg.CacheCap == 0 {
		cfg.CacheCap = time.Hour
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		RefreshInterval:   cfg.JWKSRefresh,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Errorf("jwks refresh failed: %v", err)
		},
	})
	if err != nil {
		return nil, newError(CodeNetwork, "fetching JWKS document", err)
	}

	return &Validator{
		cfg:   cfg,
		jwks:  jwks,
		cache: make(map[string]cacheEntry),
	}, nil
}

// Close stops the background JWKS refresh goroutine.
func (v *Validator) Close() {
	v.jwks.EndBackground()
}

// Validate verifies rawToken and returns the derived Identity. The advisory
// token cache is keyed by SHA-256 of the raw token with TTL =
// min(token_exp, cache_cap); correctness is unaffected if disabled.
func (v *Validator) Validate(_ context.Context, rawToken string) (Identity, error) {
	cacheKey := hashToken(rawToken)

	if !v.cfg.DisableCache {
		if id, ok := v.lookupCache(cacheKey); ok {
			return id, nil
		}
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, v.jwks.Keyfunc, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, newError(CodeExpiredToken, "token has expired", err)
		case token != nil && !token.Valid:
			return Identity{}, newError(CodeInvalidToken, "token failed signature/claims validation", err)
		default:
			return Identity{}, classifyParseError(err)
		}
	}
	if !token.Valid {
		return Identity{}, newError(CodeInvalidToken, "token is not valid", nil)
	}

	if claims.ExpiresAt == nil {
		return Identity{}, newError(CodeClaimMissing, "exp claim missing", nil)
	}
	if claims.ExpiresAt.Before(time.Now()) {
		return Identity{}, newError(CodeExpiredToken, "token has expired", nil)
	}
	if v.cfg.Issuer != "" && claims.Issuer != v.cfg.Issuer {
		return Identity{}, newError(CodeInvalidToken, "unexpected issuer", nil)
	}
	if v.cfg.Audience != "" && !claims.RegisteredClaims.Audience.Contains(v.cfg.Audience) {
		return Identity{}, newError(CodeInvalidToken, "unexpected audience", nil)
	}

	groups := claims.Groups
	if v.cfg.GroupsClaim != "groups" {
		groups = nil
		raw := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(rawToken, raw); err == nil {
			if list, ok := raw[v.cfg.GroupsClaim].([]any); ok {
				for _, g := range list {
					if s, ok := g.(string); ok {
						groups = append(groups, s)
					}
				}
			}
		}
	}
	if len(groups) == 0 {
		groups = claims.CognitoGroups
	}

	id := Identity{
		Subject:     claims.Subject,
		DisplayName: claims.Name,
		Groups:      groups,
		TokenExpiry: claims.ExpiresAt.Time,
		RawClaims:   map[string]any{"sub": claims.Subject, "groups": groups},
	}

	if !v.cfg.DisableCache {
		v.storeCache(cacheKey, id)
	}
	return id, nil
}

func classifyParseError(err error) error {
	// keyfunc surfaces an unresolved `kid` as a Keyfunc error wrapping the
	// underlying lookup failure; jwt-v5 doesn't export a sentinel for it, so
	// we fall back to INVALID_TOKEN with the cause preserved for logging.
	return newError(CodeInvalidToken, "unable to parse or verify token", err)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (v *Validator) lookupCache(key string) (Identity, bool) {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	entry, ok := v.cache[key]
	if !ok || time.Now().After(entry.expires) {
		delete(v.cache, key)
		return Identity{}, false
	}
	return entry.identity, true
}

func (v *Validator) storeCache(key string, id Identity) {
	expires := id.TokenExpiry
	ceiling := time.Now().Add(v.cfg.CacheCap)
	if expires.IsZero() || expires.After(ceiling) {
		expires = ceiling
	}

	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	v.cache[key] = cacheEntry{identity: id, expires: expires}

	// Opportunistic eviction; the cache is advisory, not a correctness
	// dependency, so a bound sweep is enough.
	if len(v.cache) > 4096 {
		now := time.Now()
		for k, e := range v.cache {
			if now.After(e.expires) {
				delete(v.cache, k)
			}
		}
	}
}
