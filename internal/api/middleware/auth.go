package middleware

import (
	"crypto/rsa"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"loyalty-hub/internal/api/response"
	"loyalty-hub/internal/model"
	jwtutil "loyalty-hub/pkg/jwt"
)

const claimsContextKey = "claims"

type Claims = jwtutil.Claims

// JWTAuth verifies the storefront's RS256 access token. Tokens whose subject
// is not a UUID are rejected, since every ledger row is keyed by user UUID.
func JWTAuth(publicKey *rsa.PublicKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := GetClaims(c); ok && claims != nil {
			c.Next()
			return
		}

		tokenString := tokenFromRequest(c)
		if tokenString == "" || publicKey == nil {
			response.Fail(c, 401, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseAccessToken(tokenString, publicKey)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.Fail(c, 401, response.ErrTokenExpired, "token expired")
			} else {
				response.Fail(c, 401, response.ErrUnauthorized, "unauthorized")
			}
			c.Abort()
			return
		}
		if _, err := uuid.Parse(claims.UserID); err != nil {
			response.Fail(c, 401, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(roles) == 0 {
			c.Next()
			return
		}

		claims, ok := GetClaims(c)
		if !ok {
			response.Fail(c, 401, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}

		for _, role := range roles {
			if strings.EqualFold(claims.Role, role) {
				c.Next()
				return
			}
		}

		response.Fail(c, 403, response.ErrForbidden, "forbidden")
		c.Abort()
	}
}

func GetClaims(c *gin.Context) (*Claims, bool) {
	val, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := val.(*Claims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

// GetIdentity returns the authenticated caller as the services see it.
func GetIdentity(c *gin.Context) (model.Identity, bool) {
	claims, ok := GetClaims(c)
	if !ok {
		return model.Identity{}, false
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return model.Identity{}, false
	}

	role := model.UserRoleUser
	if strings.EqualFold(claims.Role, string(model.UserRoleAdmin)) {
		role = model.UserRoleAdmin
	}
	return model.Identity{UserID: userID, Role: role}, true
}

func tokenFromRequest(c *gin.Context) string {
	if token := bearerTokenFromRequest(c.GetHeader("Authorization")); token != "" {
		return token
	}
	if cookieToken, err := c.Cookie("access_token"); err == nil {
		return strings.TrimSpace(cookieToken)
	}
	return ""
}

func bearerTokenFromRequest(header string) string {
	auth := strings.TrimSpace(header)
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}
