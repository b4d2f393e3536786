package jwtutil

import (
	"crypto/rsa"
	"errors"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrPublicKeyNotConfigured = errors.New("jwt public key not configured")

// Claims carries the storefront identity. The ledger only verifies tokens;
// issuing them is the storefront's job.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func NewClaims(userID, role string, expiry time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}

func GenerateAccessToken(claims *Claims, privateKey *rsa.PrivateKey) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(privateKey)
}

func ParseAccessToken(tokenStr string, publicKey *rsa.PublicKey) (*Claims, error) {
	if publicKey == nil {
		return nil, ErrPublicKeyNotConfigured
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return claims, nil
}

// LoadPublicKey reads the RS256 verification key from inline PEM or, when
// that is empty, from path.
func LoadPublicKey(pemText, path string) (*rsa.PublicKey, error) {
	pemText = strings.TrimSpace(pemText)
	if pemText == "" {
		path = strings.TrimSpace(path)
		if path == "" {
			return nil, ErrPublicKeyNotConfigured
		}
		// #nosec G304 -- path comes from operator configuration.
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		pemText = string(buf)
	}
	return jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
}
