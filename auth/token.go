package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	vyreerrors "vyre-gateway/errors"
)

const issuer = "vyre-gateway"

// CustomClaims defines the structure of the data stored inside the JWT.
// Username travels in the token so the gateway can label a connection
// without a store round-trip at handshake time.
type CustomClaims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Verifier signs and validates the credential tokens presented at handshake
// time. The secret comes from configuration; it must match the one used by
// the REST collaborator issuing tokens.
type Verifier struct {
	secret        []byte
	tokenDuration time.Duration
}

func NewVerifier(secret string, tokenDuration time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), tokenDuration: tokenDuration}
}

// Generate creates a signed JWT for a specific user.
func (v *Verifier) Generate(userID, username string, roles []string) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:   userID,
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(v.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses and validates the signature and expiration of a JWT string.
// Any failure maps to ErrAuth: the caller refuses the connection before
// registration, no finer distinction is needed.
func (v *Verifier) Verify(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vyreerrors.ErrAuth, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, vyreerrors.ErrAuth
	}
	return claims, nil
}
