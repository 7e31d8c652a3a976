package api

import (
	"log"
	"time"

	"pattibytes-express/config"
	"pattibytes-express/services"

	"github.com/gin-gonic/gin"
)

// Server holds what the HTTP handlers share.
type Server struct {
	cfg       *config.Config
	usernames services.UsernameStore
	cache     *services.UsernameCache
	now       func() time.Time
}

func NewServer(cfg *config.Config, usernames services.UsernameStore) *Server {
	s := &Server{cfg: cfg, usernames: usernames}
	s.now = func() time.Time { return time.Now().In(cfg.Location) }
	s.cache = services.NewUsernameCache(cfg.UsernameCacheTTL, nil)
	return s
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logErrors())

	secret := s.cfg.HTTP.JWTSecret
	auth := AuthMiddleware(secret)
	customer := AuthMiddleware(secret, services.RoleCustomer)

	r.GET("/health", s.health)

	m := r.Group("/merchants/:id")
	{
		m.GET("/status", s.merchantStatus)
		m.GET("/offers", OptionalAuth(secret), s.merchantOffers)
	}
	r.POST("/quotes/delivery-fee", s.quoteDeliveryFee)

	o := r.Group("/orders", auth)
	{
		o.GET("", s.listOrders)
		o.POST("", customer, s.createOrder)
		o.GET("/:id", s.getOrder)
		o.GET("/:id/history", s.orderHistory)
		o.POST("/:id/status", s.transitionOrder)
		o.POST("/:id/driver", AuthMiddleware(secret, services.RoleMerchant, services.RoleAdmin, services.RoleDriver), s.assignDriver)
	}

	r.GET("/customers/:id/trust", auth, s.customerTrust)

	r.GET("/usernames/available", OptionalAuth(secret), s.usernameAvailable)
	r.POST("/usernames/claim", customer, s.claimUsername)

	u := r.Group("/users/:id")
	{
		u.GET("/follows", s.followCounts)
		u.POST("/follow", customer, s.follow)
		u.DELETE("/follow", customer, s.unfollow)
	}
	return r
}

// logErrors logs internal errors attached to the request.
func logErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, e := range c.Errors {
			log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), e.Err)
		}
	}
}
