// Package auth provides password hashing and bearer token issuance for the
// HTTP surface.
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/amrlab/amrflow/internal/amr"
)

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(
		[]byte(password), bcrypt.DefaultCost,
	)
	if err != nil {
		return "", fmt.Errorf("unable to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(password, hashed string) bool {
	return bcrypt.CompareHashAndPassword(
		[]byte(hashed), []byte(password),
	) == nil
}

// Claims is the decoded token payload.
type Claims struct {
	UserID int64
	Role   amr.Role
}

// TokenIssuer signs and verifies access tokens. Tokens carry the user id as
// subject and the user's role as a custom claim.
type TokenIssuer struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer. Only HMAC algorithms are supported;
// anything unrecognized falls back to HS256.
func NewTokenIssuer(secret, algorithm string,
	ttl time.Duration) *TokenIssuer {

	method := jwt.SigningMethodHS256
	switch algorithm {
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	}

	return &TokenIssuer{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
	}
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue creates a signed token for the user.
func (t *TokenIssuer) Issue(userID int64, role amr.Role) (string, error) {
	now := time.Now().UTC()
	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(t.method, claims).
		SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("unable to sign token: %w", err)
	}
	return token, nil
}

// Parse verifies a token and extracts its claims.
func (t *TokenIssuer) Parse(token string) (Claims, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) {
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, amr.NewError(amr.CodeAuthInvalid,
			"Geçersiz veya süresi dolmuş erişim anahtarı")
	}

	if claims.Subject == "" || claims.Role == "" {
		return Claims{}, amr.NewError(amr.CodeAuthInvalid,
			"Token yükü eksik")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Claims{}, amr.NewError(amr.CodeAuthInvalid,
			"Token yükü eksik")
	}
	role, err := amr.ParseRole(claims.Role)
	if err != nil {
		return Claims{}, amr.NewError(amr.CodeAuthInvalid,
			"Token yükü eksik")
	}

	return Claims{UserID: userID, Role: role}, nil
}
