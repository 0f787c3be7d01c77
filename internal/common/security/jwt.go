package security

import (
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"

	"seminar_standings/internal/platform/config"
)

// TokenAuth verifies tokens issued by the contest CMS, which shares JWT_SECRET.
var TokenAuth *jwtauth.JWTAuth

func InitJWT() {
	TokenAuth = jwtauth.New("HS256", config.AppConfig.JWTKey, nil)
}

// GenerateToken issues a token in the CMS format; used by tooling and tests.
func GenerateToken(userID, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     now.Add(config.AppConfig.JWTExp).Unix(),
		"iat":     now.Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

func GetUserIDFromClaims(claims jwt.MapClaims) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}

// GetUserRoleFromClaims defaults to a plain user when the claim is absent.
func GetUserRoleFromClaims(claims jwt.MapClaims) (string, error) {
	raw, present := claims["role"]
	if !present {
		return "user", nil
	}
	role, ok := raw.(string)
	if !ok {
		return "", errors.New("role claim is not a string")
	}
	return role, nil
}
