// Package auth issues and verifies the bearer tokens carried by chat clients
// and checks the administrator key against its bcrypt hash. It has no
// dependencies on the rest of the module.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// BCryptCost is the work factor used by HashSecret.
const BCryptCost = 12

// DefaultJWTExpiry is the token lifetime in hours when JWT_EXPIRY is unset.
const DefaultJWTExpiry = 24

const (
	envJWTSecret = "JWT_SECRET"
	envJWTExpiry = "JWT_EXPIRY"
)

var (
	ErrNoSecret     = errors.New("auth: " + envJWTSecret + " is not set")
	ErrInvalidToken = errors.New("auth: invalid token")
)

func jwtSecret() ([]byte, error) {
	secret := os.Getenv(envJWTSecret)
	if secret == "" {
		return nil, ErrNoSecret
	}
	return []byte(secret), nil
}

// parseJWTExpiry parses an hour count, falling back to DefaultJWTExpiry.
func parseJWTExpiry(expiryStr string) time.Duration {
	hours, err := strconv.Atoi(expiryStr)
	if err != nil || hours <= 0 {
		return time.Duration(DefaultJWTExpiry) * time.Hour
	}
	return time.Duration(hours) * time.Hour
}

func jwtExpiry() time.Duration {
	return parseJWTExpiry(os.Getenv(envJWTExpiry))
}

// ===== BCRYPT =====

// HashSecret hashes a secret such as the administrator key.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), BCryptCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret reports whether secret matches hash. Malformed hashes never match.
func VerifySecret(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// ===== JWT =====

// Claims identify the caller. The user id keys every quota and history check.
type Claims struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// GenerateJWT signs an HS256 token for userID. username becomes the subject.
func GenerateJWT(userID int64, username, role string) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("auth: user id must be positive, got %d", userID)
	}
	secret, err := jwtSecret()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtExpiry())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// ParseJWT validates the signature, the HMAC algorithm and the expiry.
func ParseJWT(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	secret, err := jwtSecret()
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}
