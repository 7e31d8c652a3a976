package bot

import (
	"context"
	"log"

	"pattibytes-express/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const jobsRadiusKm = 5

func (b *Bot) driverFor(ctx context.Context, chatID, userID int64) *services.Driver {
	d, err := services.GetDriverByTgUserID(ctx, userID)
	if err != nil {
		log.Printf("get driver tg_user=%d: %v", userID, err)
		b.send(chatID, "Something went wrong, please try again.")
		return nil
	}
	if d == nil {
		b.send(chatID, "You are not registered as a driver.")
	}
	return d
}

func (b *Bot) handleDriverOnline(ctx context.Context, chatID, userID int64, online bool) {
	d := b.driverFor(ctx, chatID, userID)
	if d == nil {
		return
	}
	if err := services.SetDriverOnline(ctx, d.ID, chatID, online); err != nil {
		log.Printf("set driver online driver_id=%d: %v", d.ID, err)
		b.send(chatID, "Could not update your status.")
		return
	}
	if !online {
		b.send(chatID, "You are offline.")
		return
	}
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonLocation("📍 Share location")),
	)
	kb.ResizeKeyboard = true
	msg := tgbotapi.NewMessage(chatID, "You are online. Share your location, then /jobs lists ready orders nearby.")
	msg.ReplyMarkup = kb
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("send error: %v", err)
	}
}

func (b *Bot) handleDriverLocation(ctx context.Context, chatID, userID int64, lat, lon float64) {
	d := b.driverFor(ctx, chatID, userID)
	if d == nil {
		return
	}
	if !d.IsOnline {
		b.send(chatID, "Go /online first.")
		return
	}
	if err := services.UpdateDriverLocation(ctx, d.ID, lat, lon); err != nil {
		log.Printf("update driver location driver_id=%d: %v", d.ID, err)
		b.send(chatID, "Could not save your location.")
		return
	}
	b.handleJobs(ctx, chatID, userID)
}

func (b *Bot) handleJobs(ctx context.Context, chatID, userID int64) {
	d := b.driverFor(ctx, chatID, userID)
	if d == nil {
		return
	}
	jobs, err := services.ListReadyOrdersNear(ctx, d.ID, jobsRadiusKm, 10)
	if err != nil {
		log.Printf("list ready orders driver_id=%d: %v", d.ID, err)
		b.send(chatID, "Share your location first.")
		return
	}
	if len(jobs) == 0 {
		b.send(chatID, "No ready orders nearby right now.")
		return
	}
	for _, j := range jobs {
		offer := services.BuildReadyOrderOffer(j)
		msg := tgbotapi.NewMessage(chatID, offer.Text)
		if kb := cardMarkup(offer); kb != nil {
			msg.ReplyMarkup = *kb
		}
		if _, err := b.api.Send(msg); err != nil {
			log.Printf("send error: %v", err)
		}
	}
}

func (b *Bot) handleTake(ctx context.Context, cq *tgbotapi.CallbackQuery, chatID int64, actor services.Actor, orderID int64) {
	if actor.Role != services.RoleDriver {
		b.answer(cq, "Only drivers can take orders.")
		return
	}
	if _, err := services.AssignDriver(ctx, orderID, actor.ID, actor); err != nil {
		log.Printf("take order order_id=%d driver_id=%d: %v", orderID, actor.ID, err)
		b.answer(cq, userMessage(err))
		return
	}
	b.answer(cq, "✅ Order is yours")
	b.refreshOwnCard(ctx, chatID, actor, orderID)
}
