package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"uniworld_server/pkg/apperr"
)

// Locals keys set by JWTAuth.
const (
	LocalUserID  = "user_id"
	LocalPremium = "is_premium"
)

// userClaims are the claims the identity service puts in its tokens.
type userClaims struct {
	Premium bool `json:"premium"`
	jwt.RegisteredClaims
}

// JWTAuth validates the bearer token and stores the caller's identity
// in request locals. Tokens are HMAC-signed by the identity service.
func JWTAuth(secret string) fiber.Handler {
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return apperr.Unauthorized("missing authorization header")
		}

		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return apperr.Unauthorized("malformed authorization header")
		}

		claims := &userClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			return apperr.Unauthorized("invalid or expired token")
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return apperr.Unauthorized("invalid subject claim")
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalPremium, claims.Premium)
		return c.Next()
	}
}

// RequirePremium gates an endpoint behind the premium claim. Must run
// after JWTAuth.
func RequirePremium() fiber.Handler {
	return func(c *fiber.Ctx) error {
		premium, _ := c.Locals(LocalPremium).(bool)
		if !premium {
			return apperr.PremiumRequired()
		}
		return c.Next()
	}
}
