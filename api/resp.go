package api

import (
	"errors"
	"net/http"

	"pattibytes-express/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"ok": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": msg})
}

func badRequest(c *gin.Context, msg string) {
	fail(c, http.StatusBadRequest, msg)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, services.ErrNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, services.ErrReasonRequired),
		errors.Is(err, services.ErrUnknownStatus),
		errors.Is(err, services.ErrSameStatus),
		errors.Is(err, services.ErrInvalidCoordinates),
		errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrUsernameInvalid),
		errors.Is(err, services.ErrSelfFollow),
		errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrMerchantNotFound),
		errors.Is(err, services.ErrNotFollowing),
		errors.Is(err, services.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTerminalStatus),
		errors.Is(err, services.ErrStatusConflict),
		errors.Is(err, services.ErrDriverAlreadyAssigned),
		errors.Is(err, services.ErrOrderNotReady),
		errors.Is(err, services.ErrUsernameTaken),
		errors.Is(err, services.ErrAlreadyFollowing):
		return http.StatusConflict
	case errors.Is(err, services.ErrRestaurantClosed),
		errors.Is(err, services.ErrPromoNotApplicable),
		errors.Is(err, services.ErrMenuItemUnavailable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// failErr writes err with its mapped status. Internal errors are not echoed.
func failErr(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		fail(c, status, "internal error")
		return
	}
	fail(c, status, err.Error())
}
