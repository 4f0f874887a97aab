package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"milestone-service/pkg/rbac"
)

const tokenTTL = 24 * time.Hour

// GenerateJWT creates a token carrying the actor's id and role.
func GenerateJWT(actor rbac.Actor, secret string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"actor_id": actor.ID,
		"role":     actor.Role,
		"exp":      now.Add(tokenTTL).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseJWT validates token and extracts the actor.
func ParseJWT(tokenStr, secret string) (rbac.Actor, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return rbac.Actor{}, err
	}

	if !token.Valid {
		return rbac.Actor{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return rbac.Actor{}, jwt.ErrTokenMalformed
	}

	actorID, ok := claims["actor_id"].(float64)
	if !ok || actorID <= 0 {
		return rbac.Actor{}, jwt.ErrTokenMalformed
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = rbac.RoleGuest
	}

	return rbac.Actor{ID: int64(actorID), Role: role}, nil
}

func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
