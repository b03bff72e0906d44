package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	authz "pressroom/internal/auth"
)

// GenerateToken issues a signed token carrying the user id and role.
func GenerateToken(userID string, role authz.Role, secret string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and resolves the caller identity.
func ParseToken(tokenStr, secret string) (authz.Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return authz.Identity{}, err
	}
	if !token.Valid {
		return authz.Identity{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return authz.Identity{}, jwt.ErrTokenMalformed
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return authz.Identity{}, jwt.ErrTokenMalformed
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return authz.Identity{}, jwt.ErrTokenMalformed
	}
	role := authz.Role(roleStr)
	if !role.Valid() {
		return authz.Identity{}, jwt.ErrTokenMalformed
	}

	return authz.Identity{UserID: userID, Role: role}, nil
}

func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
