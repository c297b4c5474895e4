package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type identity struct {
	ParticipantId string
	Admin         bool
}

// auth validates the bearer token and extracts the participant identity.
func (s *server) auth(r *http.Request) (identity, error) {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return identity{}, fmt.Errorf("no authorization")
	}

	validToken, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.JwtSecret), nil
	})
	if err != nil || !validToken.Valid {
		return identity{}, fmt.Errorf("invalid token: %w", err)
	}

	mapClaims, ok := validToken.Claims.(jwt.MapClaims)
	if !ok {
		return identity{}, fmt.Errorf("invalid map claims")
	}
	v, ok := mapClaims["sub"]
	if !ok {
		return identity{}, fmt.Errorf("participant id not found")
	}
	participantId, ok := v.(string)
	if !ok {
		return identity{}, fmt.Errorf("invalid participant id")
	}

	admin, _ := mapClaims["admin"].(bool)
	return identity{ParticipantId: participantId, Admin: admin}, nil
}
