package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"pattibytes-express/services"
)

// handleLogin: /login <merchant id> <password>
func (b *Bot) handleLogin(ctx context.Context, chatID, userID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.send(chatID, "Usage: /login <merchant id> <password>")
		return
	}
	merchantID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || merchantID <= 0 {
		b.send(chatID, "Merchant id must be a number.")
		return
	}

	wait, err := services.LoginThrottleWaitSeconds(ctx, userID, services.ThrottleRoleMerchantAdmin, b.now())
	if err != nil {
		log.Printf("login throttle user=%d: %v", userID, err)
	}
	if wait > 0 {
		b.send(chatID, fmt.Sprintf("Too many attempts. Try again in %d s.", wait))
		return
	}

	err = services.AuthenticateMerchantAdmin(ctx, userID, chatID, merchantID, fields[1])
	if errors.Is(err, services.ErrBadCredentials) {
		if err := services.RecordLoginFailed(ctx, userID, services.ThrottleRoleMerchantAdmin); err != nil {
			log.Printf("record login failed user=%d: %v", userID, err)
		}
		b.send(chatID, "❌ Wrong merchant id or password.")
		return
	}
	if err != nil {
		log.Printf("merchant login user=%d merchant=%d: %v", userID, merchantID, err)
		b.send(chatID, "Login failed, please try again.")
		return
	}
	if err := services.RecordLoginSuccess(ctx, userID, services.ThrottleRoleMerchantAdmin); err != nil {
		log.Printf("record login success user=%d: %v", userID, err)
	}
	log.Printf("merchant admin login user=%d merchant=%d", userID, merchantID)
	b.send(chatID, fmt.Sprintf("✅ Logged in for merchant #%d. New orders will arrive in this chat.", merchantID))
}

func (b *Bot) handleLogout(ctx context.Context, chatID, userID int64) {
	if err := services.LogoutMerchantAdmin(ctx, userID); err != nil {
		log.Printf("merchant logout user=%d: %v", userID, err)
		b.send(chatID, "Logout failed, please try again.")
		return
	}
	b.send(chatID, "Logged out.")
}

// handleOrders re-sends the cards of the caller's open orders.
func (b *Bot) handleOrders(ctx context.Context, chatID, userID int64) {
	actor, ok, err := services.TelegramActor(ctx, userID)
	if err != nil || !ok {
		b.send(chatID, "Please /login first.")
		return
	}
	var orderIDs []int64
	switch actor.Role {
	case services.RoleMerchant:
		orders, err := services.ListMerchantActiveOrders(ctx, actor.ID)
		if err != nil {
			log.Printf("list merchant orders merchant=%d: %v", actor.ID, err)
			b.send(chatID, "Could not load orders.")
			return
		}
		for _, o := range orders {
			orderIDs = append(orderIDs, o.ID)
		}
	case services.RoleCustomer:
		orders, err := services.ListCustomerOrders(ctx, actor.ID, 5)
		if err != nil {
			log.Printf("list customer orders customer=%d: %v", actor.ID, err)
			b.send(chatID, "Could not load orders.")
			return
		}
		for _, o := range orders {
			orderIDs = append(orderIDs, o.ID)
		}
	default:
		b.handleJobs(ctx, chatID, userID)
		return
	}
	if len(orderIDs) == 0 {
		b.send(chatID, "No open orders.")
		return
	}
	for _, id := range orderIDs {
		b.refreshOwnCard(ctx, chatID, actor, id)
	}
}
