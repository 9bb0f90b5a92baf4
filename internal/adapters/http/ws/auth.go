package ws

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is who a connection speaks for.
type Identity struct {
	UserID    string
	ProfileID string
}

// Claims are the identity token claims. The subject is the user id.
type Claims struct {
	ProfileID string `json:"profile_id,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves the identity of an upgrade request. With no secret
// it trusts the user_id and profile_id query parameters.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator for HS256 tokens signed with secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Issue signs a token for userID. An empty profileID means the user's own profile.
func (a *Authenticator) Issue(userID, profileID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ProfileID: profileID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate reads the bearer token from the Authorization header or the
// token query parameter.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	if len(a.secret) == 0 {
		q := r.URL.Query()
		id := Identity{UserID: q.Get("user_id"), ProfileID: q.Get("profile_id")}
		if id.UserID == "" {
			return Identity{}, fmt.Errorf("%w: missing user_id", ErrUnauthorized)
		}
		if id.ProfileID == "" {
			id.ProfileID = id.UserID
		}
		return id, nil
	}

	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: invalid claims", ErrUnauthorized)
	}
	id := Identity{UserID: claims.Subject, ProfileID: claims.ProfileID}
	if id.ProfileID == "" {
		id.ProfileID = id.UserID
	}
	return id, nil
}
