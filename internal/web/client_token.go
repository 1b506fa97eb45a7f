package web

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ClientCookieName = "sparx_client"
	tokenIssuer      = "sparx"
)

// ClientTokens issues and verifies the signed cookie that identifies a
// browser client. The token only carries the client id; there are no
// credentials behind it.
type ClientTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewClientTokens(secret []byte, ttl time.Duration) (*ClientTokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("client token secret is required")
	}
	return &ClientTokens{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for clientID.
func (t *ClientTokens) Issue(clientID string) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   clientID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign client token: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns the client id it carries.
func (t *ClientTokens) Parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("failed to parse client token: %w", err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("invalid client id: %w", err)
	}
	return id.String(), nil
}

// clientID returns the id from the request cookie, minting a new client and
// setting the cookie when it is missing or invalid.
func (t *ClientTokens) clientID(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(ClientCookieName); err == nil {
		if id, err := t.Parse(c.Value); err == nil {
			return id, nil
		}
	}

	id := uuid.NewString()
	token, err := t.Issue(id)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(t.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}
