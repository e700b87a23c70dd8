package devserver

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type tokenClaims struct {
	UserId string
	RoomId string
}

func (s *service) generateToken(userId, roomId string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userId,
		"room_id": roomId,
	})

	tokenString, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (s *service) parseToken(tokenString string) (tokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return []byte(s.secret), nil
	})
	if err != nil {
		return tokenClaims{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return tokenClaims{}, ErrInvalidToken
	}

	userId, ok := claims["user_id"].(string)
	if !ok || userId == "" {
		return tokenClaims{}, ErrInvalidToken
	}

	roomId, ok := claims["room_id"].(string)
	if !ok || roomId == "" {
		return tokenClaims{}, ErrInvalidToken
	}

	return tokenClaims{UserId: userId, RoomId: roomId}, nil
}
