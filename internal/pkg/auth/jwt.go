// Package auth provides functionality for generating and parsing JSON Web Tokens (JWT)
// for user authentication. It defines custom claims, token generation, and validation logic.
package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TOKENEXP defines the token expiration duration.
const TOKENEXP = time.Hour * 3

var (
	mu        sync.RWMutex
	secretKey = []byte("supersecretkey")
)

// SetSecret replaces the key tokens are signed with.
func SetSecret(secret string) {
	mu.Lock()
	defer mu.Unlock()
	secretKey = []byte(secret)
}

func secret() []byte {
	mu.RLock()
	defer mu.RUnlock()
	return secretKey
}

// Claims represents the custom JWT claims that include the user ID, the game master flag
// and standard claims.
type Claims struct {
	UserID int32
	IsGM   bool
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for a given userID.
func GenerateToken(userID int32, isGM bool) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TOKENEXP)),
		},
		UserID: userID,
		IsGM:   isGM,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

// ParseToken validates the provided JWT token string and parses its claims.
func ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret(), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
