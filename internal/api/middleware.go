/**
 * @description
 * This file contains custom middleware for the HTTP router. The auth
 * middleware validates the caller's bearer token against the identity
 * provider's JWKS endpoint and places the verified subject in the request
 * context; the service trusts that subject as the issuer identity.
 *
 * The JWKS key set is cached with a TTL and refreshed under a mutex held
 * across the fetch, so concurrent cache misses share one request and key
 * rotation is picked up without restarting the service.
 *
 * @dependencies
 * - context, crypto/rsa, net/http, strings, sync, time: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDContextKey is a custom type for the context key to avoid collisions.
type UserIDContextKey string

const issuerIDKey UserIDContextKey = "issuerID"

// jwksCacheTTL bounds how long a fetched key set is trusted before the next
// refresh. An unknown kid inside the TTL also forces a refresh, so rotation
// is picked up promptly.
const jwksCacheTTL = 10 * time.Minute

// jwksProvider fetches and caches the identity provider's RSA public keys.
type jwksProvider struct {
	url        string
	httpClient *http.Client

	mu     sync.Mutex
	keys   map[string]*rsa.PublicKey
	expiry time.Time
}

func newJWKSProvider(url string) *jwksProvider {
	return &jwksProvider{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// publicKey returns the RSA key for the given kid, refreshing the cached key
// set when it is stale or the kid is unknown. The mutex is held across the
// fetch so concurrent misses coalesce into one request.
func (p *jwksProvider) publicKey(kid string) (*rsa.PublicKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if key, ok := p.keys[kid]; ok && time.Now().Before(p.expiry) {
		return key, nil
	}

	if err := p.refresh(); err != nil {
		return nil, err
	}

	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}
	return key, nil
}

func (p *jwksProvider) refresh() error {
	resp, err := p.httpClient.Get(p.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return err
	}

	fresh := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.Kty != "" && key.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			return fmt.Errorf("failed to parse jwks key %s: %w", key.Kid, err)
		}
		fresh[key.Kid] = pub
	}

	p.keys = fresh
	p.expiry = time.Now().Add(jwksCacheTTL)
	return nil
}

// AuthMiddleware creates a middleware that validates RS256 bearer tokens
// against the configured JWKS endpoint.
func AuthMiddleware(jwksURL string) func(http.Handler) http.Handler {
	provider := newJWKSProvider(jwksURL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}

				kid, ok := token.Header["kid"].(string)
				if !ok {
					return nil, fmt.Errorf("kid not found in token header")
				}

				return provider.publicKey(kid)
			})
			if err != nil {
				http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			// Optional audience / issuer enforcement via env
			if expectedAud := os.Getenv("JWT_AUDIENCE"); expectedAud != "" {
				if aud, ok := claims["aud"].(string); !ok || aud != expectedAud {
					http.Error(w, "Invalid audience", http.StatusUnauthorized)
					return
				}
			}
			if expectedIss := os.Getenv("JWT_ISSUER"); expectedIss != "" {
				if iss, ok := claims["iss"].(string); !ok || iss != expectedIss {
					http.Error(w, "Invalid issuer", http.StatusUnauthorized)
					return
				}
			}

			subject, ok := claims["sub"].(string)
			if !ok {
				http.Error(w, "User ID not found in token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), issuerIDKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseRSAPublicKey builds an RSA public key from a JWK's base64url modulus
// and exponent.
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}, nil
}

// GetIssuerID retrieves the authenticated issuer identity from the request context.
// Handlers should use this function to get the authenticated user's ID.
func GetIssuerID(ctx context.Context) (string, bool) {
	issuerID, ok := ctx.Value(issuerIDKey).(string)
	return issuerID, ok
}
