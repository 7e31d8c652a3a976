package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pattibytes-express/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

// Claims carries the actor: role plus the id in "sub".
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for actor valid for ttl.
func IssueToken(secret string, actor services.Actor, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret, tokenStr string) (services.Actor, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return services.Actor{}, fmt.Errorf("invalid token")
	}
	switch claims.Role {
	case services.RoleCustomer, services.RoleMerchant, services.RoleAdmin, services.RoleDriver:
	default:
		return services.Actor{}, fmt.Errorf("invalid role")
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return services.Actor{}, fmt.Errorf("invalid subject")
	}
	return services.Actor{Role: claims.Role, ID: id}, nil
}

// AuthMiddleware requires a bearer token and, when roles are given, one of
// those roles. The actor is stored in the context.
func AuthMiddleware(secret string, requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			fail(c, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		actor, err := parseToken(secret, strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			fail(c, http.StatusUnauthorized, err.Error())
			return
		}
		if len(requiredRoles) > 0 {
			allowed := false
			for _, r := range requiredRoles {
				if actor.Role == r {
					allowed = true
					break
				}
			}
			if !allowed {
				fail(c, http.StatusForbidden, "forbidden")
				return
			}
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// OptionalAuth stores the actor when a valid token is present and lets
// anonymous requests through.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			if actor, err := parseToken(secret, strings.TrimPrefix(h, "Bearer ")); err == nil {
				c.Set(actorKey, actor)
			}
		}
		c.Next()
	}
}

func currentActor(c *gin.Context) (services.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return services.Actor{}, false
	}
	a, ok := v.(services.Actor)
	return a, ok
}
