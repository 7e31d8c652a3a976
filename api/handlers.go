package api

import (
	"strconv"

	"pattibytes-express/db"
	"pattibytes-express/models"
	"pattibytes-express/services"

	"github.com/gin-gonic/gin"
)

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *Server) health(c *gin.Context) {
	if db.Pool != nil {
		if err := db.Pool.Ping(c.Request.Context()); err != nil {
			failErr(c, err)
			return
		}
	}
	ok(c, gin.H{"status": "up"})
}

type merchantStatusResp struct {
	MerchantID int64  `json:"merchant_id"`
	Name       string `json:"name"`
	services.OpenState
}

func (s *Server) merchantStatus(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	m, err := services.GetMerchant(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	if m == nil {
		failErr(c, services.ErrMerchantNotFound)
		return
	}
	ok(c, merchantStatusResp{MerchantID: m.ID, Name: m.Name, OpenState: services.MerchantOpenState(m, s.now())})
}

func (s *Server) merchantOffers(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var customerID int64
	if a, found := currentActor(c); found && a.Role == services.RoleCustomer {
		customerID = a.ID
	}
	badge, err := services.MerchantOfferBadge(c.Request.Context(), id, customerID, s.now())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"badge": badge})
}

type quoteReq struct {
	MerchantID int64    `json:"merchant_id" binding:"required,gt=0"`
	Lat        *float64 `json:"lat" binding:"required"`
	Lon        *float64 `json:"lon" binding:"required"`
}

func (s *Server) quoteDeliveryFee(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := services.ValidateCoordinates(*req.Lat, *req.Lon); err != nil {
		failErr(c, err)
		return
	}
	ctx := c.Request.Context()
	m, err := services.GetMerchant(ctx, req.MerchantID)
	if err != nil {
		failErr(c, err)
		return
	}
	if m == nil {
		failErr(c, services.ErrMerchantNotFound)
		return
	}
	tiers, err := services.ListFeeTiers(ctx, m.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	q, err := services.QuoteDeliveryFee(*req.Lat, *req.Lon, m, tiers, s.cfg.Delivery.RatePerKm)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, q)
}

func (s *Server) createOrder(c *gin.Context) {
	actor, _ := currentActor(c)
	var in models.CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	in.CustomerID = actor.ID
	o, err := services.CreateOrder(c.Request.Context(), in, services.CheckoutOptions{
		RatePerKm:  s.cfg.Delivery.RatePerKm,
		TaxPercent: s.cfg.Pricing.TaxPercent,
		Now:        s.now(),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	created(c, o)
}

func (s *Server) listOrders(c *gin.Context) {
	actor, _ := currentActor(c)
	ctx := c.Request.Context()
	var (
		orders []models.Order
		err    error
	)
	switch actor.Role {
	case services.RoleCustomer:
		limit, _ := strconv.Atoi(c.Query("limit"))
		orders, err = services.ListCustomerOrders(ctx, actor.ID, limit)
	case services.RoleMerchant:
		orders, err = services.ListMerchantActiveOrders(ctx, actor.ID)
	default:
		failErr(c, services.ErrNotPermitted)
		return
	}
	if err != nil {
		failErr(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	ok(c, orders)
}

// loadVisibleOrder fetches the order and checks the caller may see it.
func (s *Server) loadVisibleOrder(c *gin.Context) (*models.Order, bool) {
	id, valid := idParam(c)
	if !valid {
		return nil, false
	}
	o, err := services.GetOrder(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return nil, false
	}
	if o == nil {
		failErr(c, services.ErrOrderNotFound)
		return nil, false
	}
	actor, _ := currentActor(c)
	if !services.CanView(o, actor) {
		failErr(c, services.ErrNotPermitted)
		return nil, false
	}
	return o, true
}

func (s *Server) getOrder(c *gin.Context) {
	if o, found := s.loadVisibleOrder(c); found {
		ok(c, o)
	}
}

func (s *Server) orderHistory(c *gin.Context) {
	o, found := s.loadVisibleOrder(c)
	if !found {
		return
	}
	h, err := services.GetStatusHistory(c.Request.Context(), o.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	if h == nil {
		h = []models.StatusHistoryEntry{}
	}
	ok(c, h)
}

type transitionReq struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) transitionOrder(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req transitionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor, _ := currentActor(c)
	o, err := services.TransitionOrder(c.Request.Context(), id, req.Status, actor, req.Reason, s.now())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, o)
}

type assignDriverReq struct {
	DriverID int64 `json:"driver_id"`
}

func (s *Server) assignDriver(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req assignDriverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor, _ := currentActor(c)
	if req.DriverID == 0 && actor.Role == services.RoleDriver {
		req.DriverID = actor.ID
	}
	if req.DriverID <= 0 {
		badRequest(c, "driver_id is required")
		return
	}
	o, err := services.AssignDriver(c.Request.Context(), id, req.DriverID, actor)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, o)
}

func (s *Server) customerTrust(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	actor, _ := currentActor(c)
	if actor.Role == services.RoleDriver || (actor.Role == services.RoleCustomer && actor.ID != id) {
		failErr(c, services.ErrNotPermitted)
		return
	}
	ts, err := services.CustomerTrust(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, ts)
}

func (s *Server) usernameAvailable(c *gin.Context) {
	var userID int64
	if a, found := currentActor(c); found && a.Role == services.RoleCustomer {
		userID = a.ID
	}
	avail, err := services.UsernameAvailable(c.Request.Context(), s.usernames, s.cache, userID, c.Query("name"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"available": avail})
}

type claimUsernameReq struct {
	Username string `json:"username" binding:"required"`
}

func (s *Server) claimUsername(c *gin.Context) {
	var req claimUsernameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor, _ := currentActor(c)
	name, err := services.ClaimUsername(c.Request.Context(), s.usernames, s.cache,
		services.DefaultRetryPolicy, services.SleepContext, actor.ID, req.Username)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"username": name})
}

func (s *Server) followCounts(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	counts, err := services.GetFollowCounts(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	if counts == nil {
		failErr(c, services.ErrProfileNotFound)
		return
	}
	ok(c, counts)
}

func (s *Server) follow(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	actor, _ := currentActor(c)
	if err := services.Follow(c.Request.Context(), actor.ID, id); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"following": true})
}

func (s *Server) unfollow(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	actor, _ := currentActor(c)
	if err := services.Unfollow(c.Request.Context(), actor.ID, id); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"following": false})
}
