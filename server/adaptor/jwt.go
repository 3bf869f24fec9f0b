package adaptor

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ponyo877/relaychat/server/domain"
	"github.com/ponyo877/relaychat/server/usecase"
)

const tokenIssuer = "relaychat"

type identityClaims struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// JWTCodec signs identities with HS512.
type JWTCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTCodec returns a codec whose tokens never expire when ttl is zero.
func NewJWTCodec(secret string, ttl time.Duration) usecase.TokenCodec {
	return &JWTCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (c *JWTCodec) Encode(identity domain.Identity) (string, error) {
	now := c.now()
	claims := identityClaims{
		ID:   identity.ID,
		Name: identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   tokenIssuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

func (c *JWTCodec) Decode(token string) (domain.Identity, error) {
	var claims identityClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, domain.Errorf(domain.ErrInvalidToken, "Your token has expired")
		}
		return domain.Identity{}, domain.Errorf(domain.ErrInvalidToken, "Invalid token")
	}
	identity := domain.NewIdentity(claims.ID, claims.Name)
	if !identity.IsValid() {
		return domain.Identity{}, domain.Errorf(domain.ErrInvalidToken, "Invalid token")
	}
	return identity, nil
}
