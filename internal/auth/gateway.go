package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	comms_errors "startuphub-comms/pkg/errors"
)

// Gateway resolves an incoming request to the authenticated user. The
// identity service owns registration, expiry and refresh; the core only
// validates tokens.
type Gateway interface {
	Authenticate(r *http.Request) (uuid.UUID, error)
}

// Claims is the access-token payload the identity service issues.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTGateway validates HS256 access tokens.
type JWTGateway struct {
	secret []byte
}

func NewJWTGateway(secret string) *JWTGateway {
	return &JWTGateway{secret: []byte(secret)}
}

// Authenticate extracts and validates the token. Accepted forms, in priority
// order: "Authorization: Bearer <t>", "Authorization: Token <t>",
// "Authorization: <t>", then the "token" query parameter.
func (g *JWTGateway) Authenticate(r *http.Request) (uuid.UUID, error) {
	token := ExtractToken(r)
	if token == "" {
		return uuid.Nil, comms_errors.ErrUnauthorized
	}
	return g.ParseAccessToken(token)
}

// ParseAccessToken validates a raw token string and returns the user id.
func (g *JWTGateway) ParseAccessToken(token string) (uuid.UUID, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, comms_errors.ErrUnauthorized
	}

	raw := claims.UserID
	if raw == "" {
		raw = claims.Subject
	}
	userID, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, comms_errors.ErrUnauthorized
	}
	return userID, nil
}

// IssueToken signs an access token for a user. Used by tests and the seed
// tooling; the identity service is the real issuer.
func (g *JWTGateway) IssueToken(userID uuid.UUID) (string, error) {
	claims := &Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID.String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

// ExtractToken pulls the raw token out of a request.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && (strings.EqualFold(parts[0], "Bearer") || strings.EqualFold(parts[0], "Token")) {
			return strings.TrimSpace(parts[1])
		}
		if len(parts) == 1 {
			return header
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
