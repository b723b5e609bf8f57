package utils

import (
	"fmt"
	"os"

	"github.com/dgrijalva/jwt-go"
)

// JwtCustomClaim mirrors the claims the central backend puts in the bearer
// token the technician app receives at login.
type JwtCustomClaim struct {
	TechnicianId string `json:"technicianId"`
	BusinessId   string `json:"businessId"`
	Role         string `json:"role"`
	jwt.StandardClaims
}

var jwtSecret = []byte(getJwtSecret())

func getJwtSecret() string {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return "FieldService-Secret"
	}
	return secret
}

func JwtValidate(token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return jwtSecret, nil
	})
}

// JwtClaims validates and returns the parsed claims, or nil when the token
// is invalid or expired.
func JwtClaims(token string) *JwtCustomClaim {
	parsed, err := JwtValidate(token)
	if err != nil || !parsed.Valid {
		return nil
	}
	claims, _ := parsed.Claims.(*JwtCustomClaim)
	return claims
}
