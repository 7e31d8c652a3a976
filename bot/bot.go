package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"pattibytes-express/config"
	"pattibytes-express/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot serves merchants, drivers and customers from one Telegram bot and
// delivers the order notification outbox.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	// users asked for a cancellation reason: tg user id -> order id
	pendingCancel   map[int64]int64
	pendingCancelMu sync.Mutex

	orderLocks sync.Map // map[orderID]*sync.Mutex
}

func New(cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	return &Bot{
		api:           api,
		cfg:           cfg,
		pendingCancel: make(map[int64]int64),
	}, nil
}

// cardMarkup converts OrderCardContent.Buttons to Telegram inline keyboard (URL vs callback).
func cardMarkup(c services.OrderCardContent) *tgbotapi.InlineKeyboardMarkup {
	if len(c.Buttons) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range c.Buttons {
		var btns []tgbotapi.InlineKeyboardButton
		for _, btn := range row {
			if btn.URL != "" {
				btns = append(btns, tgbotapi.NewInlineKeyboardButtonURL(btn.Text, btn.URL))
			} else {
				btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.CallbackData))
			}
		}
		rows = append(rows, btns)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func isMessageGone(err error) bool {
	s := err.Error()
	return strings.Contains(s, "message to edit not found") || strings.Contains(s, "message not found")
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

// UpsertOrderCard edits the audience's card for the order in place, or sends
// a new one when there is none, it was deleted, or it lives in another chat.
func (b *Bot) UpsertOrderCard(ctx context.Context, audience string, orderID, chatID int64, content services.OrderCardContent) error {
	unlock := b.lockOrder(orderID)
	defer unlock()

	ptrChat, messageID, ok, err := services.GetOrderMessagePointer(ctx, orderID, audience)
	if err != nil {
		return fmt.Errorf("get pointer: %w", err)
	}
	if ok && ptrChat == chatID {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, content.Text)
		if kb := cardMarkup(content); kb != nil {
			edit.ReplyMarkup = kb
		} else {
			edit.ReplyMarkup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
		}
		_, err := b.api.Send(edit)
		switch {
		case err == nil, isNotModified(err):
			return nil
		case !isMessageGone(err):
			return fmt.Errorf("edit card: %w", err)
		}
	}

	msg := tgbotapi.NewMessage(chatID, content.Text)
	if kb := cardMarkup(content); kb != nil {
		msg.ReplyMarkup = *kb
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("send card: %w", err)
	}
	return services.UpsertOrderMessagePointer(ctx, orderID, audience, chatID, sent.MessageID)
}

// lockOrder serializes card edits of one order.
func (b *Bot) lockOrder(orderID int64) func() {
	v, _ := b.orderLocks.LoadOrStore(orderID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// refreshOwnCard redraws the card of whoever just acted; the outbox only
// notifies the other parties.
func (b *Bot) refreshOwnCard(ctx context.Context, chatID int64, actor services.Actor, orderID int64) {
	o, err := services.GetOrder(ctx, orderID)
	if err != nil || o == nil {
		log.Printf("refresh card order_id=%d: %v", orderID, err)
		return
	}
	content, err := services.BuildOrderCard(ctx, o, actor.Role, b.cfg.Location)
	if err != nil {
		log.Printf("build card order_id=%d audience=%s: %v", orderID, actor.Role, err)
		return
	}
	if err := b.UpsertOrderCard(ctx, actor.Role, orderID, chatID, content); err != nil {
		log.Printf("upsert card order_id=%d audience=%s: %v", orderID, actor.Role, err)
	}
}

func (b *Bot) setBotCommands() error {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Start"},
		tgbotapi.BotCommand{Command: "orders", Description: "Open orders"},
		tgbotapi.BotCommand{Command: "login", Description: "Merchant login: /login <merchant id> <password>"},
		tgbotapi.BotCommand{Command: "logout", Description: "Merchant logout"},
		tgbotapi.BotCommand{Command: "online", Description: "Driver: go online"},
		tgbotapi.BotCommand{Command: "offline", Description: "Driver: go offline"},
		tgbotapi.BotCommand{Command: "jobs", Description: "Driver: ready orders near me"},
	)
	_, err := b.api.Request(cfg)
	return err
}

// Start handles updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	if err := b.setBotCommands(); err != nil {
		log.Printf("set bot commands: %v", err)
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.CallbackQuery != nil {
			b.handleCallback(ctx, update.CallbackQuery)
			continue
		}
		if update.Message == nil || update.Message.From == nil {
			continue
		}
		msg := update.Message
		userID := msg.From.ID
		chatID := msg.Chat.ID
		text := strings.TrimSpace(msg.Text)

		if msg.Location != nil {
			b.handleDriverLocation(ctx, chatID, userID, msg.Location.Latitude, msg.Location.Longitude)
			continue
		}

		cmd, args := splitCommand(text)
		switch cmd {
		case "/start":
			b.clearPendingCancel(userID)
			b.handleStart(ctx, chatID, userID)
		case "/login":
			b.handleLogin(ctx, chatID, userID, args)
		case "/logout":
			b.handleLogout(ctx, chatID, userID)
		case "/orders":
			b.handleOrders(ctx, chatID, userID)
		case "/online", "/offline":
			b.handleDriverOnline(ctx, chatID, userID, cmd == "/online")
		case "/jobs":
			b.handleJobs(ctx, chatID, userID)
		case "":
			if text != "" && b.handleCancelReason(ctx, chatID, userID, text) {
				continue
			}
			b.send(chatID, "Use /orders to see your orders.")
		default:
			b.send(chatID, "Unknown command.")
		}
	}
}

// splitCommand splits "/cmd@bot a b" into "/cmd" and "a b". cmd is empty
// for plain text.
func splitCommand(text string) (cmd, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, args, _ = strings.Cut(text, " ")
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("send error: %v", err)
	}
}

func (b *Bot) answer(cq *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, text)); err != nil {
		log.Printf("answer callback: %v", err)
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID, userID int64) {
	actor, ok, err := services.TelegramActor(ctx, userID)
	if err != nil {
		log.Printf("telegram actor user=%d: %v", userID, err)
		b.send(chatID, "Something went wrong, please try again.")
		return
	}
	if !ok {
		b.send(chatID, "Welcome to PattiBytes Express!\n\nMerchants: /login <merchant id> <password>\nOrder updates appear here once your account is linked.")
		return
	}
	switch actor.Role {
	case services.RoleMerchant:
		b.send(chatID, fmt.Sprintf("Logged in for merchant #%d. /orders shows open orders.", actor.ID))
	case services.RoleDriver:
		b.send(chatID, "Driver panel: /online, /offline, /jobs. Share your location to see nearby orders.")
	default:
		b.send(chatID, "Your order updates will appear here. /orders shows recent orders.")
	}
}

// callback is a parsed order card button.
type callback struct {
	Kind    string
	OrderID int64
	Status  string
}

var errBadCallback = errors.New("invalid callback")

func parseCallback(data string) (callback, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 {
		return callback{}, errBadCallback
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return callback{}, errBadCallback
	}
	c := callback{Kind: parts[0], OrderID: id}
	switch c.Kind {
	case services.CallbackOrderStatus:
		if len(parts) != 3 || !services.IsKnownStatus(parts[2]) {
			return callback{}, errBadCallback
		}
		c.Status = parts[2]
	case services.CallbackOrderCancel, services.CallbackOrderTake:
		if len(parts) != 2 {
			return callback{}, errBadCallback
		}
	default:
		return callback{}, errBadCallback
	}
	return c, nil
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil {
		return
	}
	c, err := parseCallback(cq.Data)
	if err != nil {
		b.answer(cq, "Invalid button.")
		return
	}
	actor, ok, err := services.TelegramActor(ctx, cq.From.ID)
	if err != nil {
		log.Printf("telegram actor user=%d: %v", cq.From.ID, err)
		b.answer(cq, "Something went wrong.")
		return
	}
	if !ok {
		b.answer(cq, "Unauthorized.")
		return
	}
	chatID := cq.Message.Chat.ID

	switch c.Kind {
	case services.CallbackOrderStatus:
		b.transition(ctx, cq, chatID, actor, c.OrderID, c.Status, "")
	case services.CallbackOrderCancel:
		b.setPendingCancel(cq.From.ID, c.OrderID)
		b.answer(cq, "")
		b.send(chatID, fmt.Sprintf("Why is order #%d being cancelled? Send the reason as a message, or /start to keep it.", c.OrderID))
	case services.CallbackOrderTake:
		b.handleTake(ctx, cq, chatID, actor, c.OrderID)
	}
}

func (b *Bot) transition(ctx context.Context, cq *tgbotapi.CallbackQuery, chatID int64, actor services.Actor, orderID int64, to, reason string) {
	_, err := services.TransitionOrder(ctx, orderID, to, actor, reason, b.now())
	if err != nil {
		log.Printf("order status update failed: order=%d status=%s actor=%s/%d: %v", orderID, to, actor.Role, actor.ID, err)
		msg := userMessage(err)
		if cq != nil {
			b.answer(cq, msg)
		} else {
			b.send(chatID, msg)
		}
		return
	}
	if cq != nil {
		b.answer(cq, "✅ "+services.StatusLabel(to))
	} else {
		b.send(chatID, fmt.Sprintf("✅ Order #%d: %s", orderID, services.StatusLabel(to)))
	}
	b.refreshOwnCard(ctx, chatID, actor, orderID)
}

// userMessage turns service errors into short replies.
func userMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		return "Order not found."
	case errors.Is(err, services.ErrNotPermitted):
		return "You can't do that for this order."
	case errors.Is(err, services.ErrTerminalStatus):
		return "This order is already closed."
	case errors.Is(err, services.ErrSameStatus):
		return "Already done."
	case errors.Is(err, services.ErrStatusConflict):
		return "The order changed meanwhile, please retry."
	case errors.Is(err, services.ErrReasonRequired):
		return "Please give a reason."
	case errors.Is(err, services.ErrDriverAlreadyAssigned):
		return "Another driver already took this order."
	case errors.Is(err, services.ErrOrderNotReady):
		return "The order is not ready yet."
	}
	return "Something went wrong, please try again."
}

func (b *Bot) setPendingCancel(userID, orderID int64) {
	b.pendingCancelMu.Lock()
	b.pendingCancel[userID] = orderID
	b.pendingCancelMu.Unlock()
}

func (b *Bot) clearPendingCancel(userID int64) {
	b.pendingCancelMu.Lock()
	delete(b.pendingCancel, userID)
	b.pendingCancelMu.Unlock()
}

func (b *Bot) takePendingCancel(userID int64) (int64, bool) {
	b.pendingCancelMu.Lock()
	defer b.pendingCancelMu.Unlock()
	id, ok := b.pendingCancel[userID]
	delete(b.pendingCancel, userID)
	return id, ok
}

// handleCancelReason consumes a plain message as the reason for a pending
// cancel. It reports false when nothing was pending.
func (b *Bot) handleCancelReason(ctx context.Context, chatID, userID int64, text string) bool {
	orderID, ok := b.takePendingCancel(userID)
	if !ok {
		return false
	}
	actor, ok, err := services.TelegramActor(ctx, userID)
	if err != nil || !ok {
		b.send(chatID, "Unauthorized.")
		return true
	}
	b.transition(ctx, nil, chatID, actor, orderID, services.OrderStatusCancelled, text)
	return true
}
