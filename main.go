package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"pattibytes-express/api"
	"pattibytes-express/bot"
	"pattibytes-express/config"
	"pattibytes-express/db"
	"pattibytes-express/services"

	"github.com/olekukonko/tablewriter"
)

const usage = `usage: pattibytes-express [command]

commands:
  serve                          run the HTTP API, Telegram bot and notification dispatcher (default)
  migrate                        apply embedded SQL migrations
  stats [YYYY-MM-DD]             print the order report for a day (default today)
  merchant-password <merchant>   generate a new bot login password for a merchant
  token <role> <id> [ttl]        print an API token (role: customer, merchant, admin, driver)`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	args := os.Args[min(2, len(os.Args)):]

	switch cmd {
	case "serve":
		err = runServe(cfg)
	case "migrate":
		err = withDB(cfg, func(ctx context.Context) error { return applyMigrations(ctx, true) })
	case "stats":
		err = withDB(cfg, func(ctx context.Context) error { return runStats(ctx, cfg, args) })
	case "merchant-password":
		err = withDB(cfg, func(ctx context.Context) error { return runMerchantPassword(ctx, args) })
	case "token":
		err = runToken(cfg, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, cmd+":", err)
		os.Exit(1)
	}
}

func withDB(cfg *config.Config, fn func(ctx context.Context) error) error {
	if err := db.Init(cfg.DB); err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer db.Close()
	return fn(context.Background())
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Init(cfg.DB); err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := applyMigrations(ctx, false); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	var wg sync.WaitGroup
	if cfg.Telegram.Token != "" {
		b, err := bot.New(cfg)
		if err != nil {
			return fmt.Errorf("bot: %w", err)
		}
		wg.Add(2)
		go func() { defer wg.Done(); b.Start(ctx) }()
		go func() { defer wg.Done(); b.RunDispatcher(ctx) }()
		log.Println("Telegram bot and notification dispatcher started.")
	} else {
		log.Println("TOKEN not set: Telegram bot and notifications disabled.")
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewServer(cfg, services.PgUsernameStore{}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP API listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("http: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	wg.Wait()
	return nil
}

func runStats(ctx context.Context, cfg *config.Config, args []string) error {
	date := time.Now().In(cfg.Location).Format("2006-01-02")
	if len(args) > 0 {
		if _, err := time.Parse("2006-01-02", args[0]); err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		date = args[0]
	}
	s, err := services.GetDailyStats(ctx, date, cfg.Location)
	if err != nil {
		return err
	}

	fmt.Printf("Orders on %s (%s)\n", date, cfg.Location)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	rows := [][]string{
		{"Orders placed", strconv.Itoa(s.OrdersCount)},
		{"Delivered", strconv.Itoa(s.DeliveredCount)},
		{"Cancelled", strconv.Itoa(s.CancelledCount)},
		{"Items revenue", rupees(s.ItemsRevenue)},
		{"Discounts", rupees(s.DiscountTotal)},
		{"Delivery fees", rupees(s.DeliveryRevenue)},
		{"Tax", rupees(s.TaxTotal)},
		{"Grand total", rupees(s.GrandRevenue)},
	}
	for _, r := range rows {
		if err := table.Append(r); err != nil {
			return err
		}
	}
	return table.Render()
}

func rupees(v int64) string {
	return "₹" + strconv.FormatInt(v, 10)
}

func runMerchantPassword(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: merchant-password <merchant id>")
	}
	merchantID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || merchantID <= 0 {
		return fmt.Errorf("invalid merchant id %q", args[0])
	}
	m, err := services.GetMerchant(ctx, merchantID)
	if err != nil {
		return err
	}
	if m == nil {
		return services.ErrMerchantNotFound
	}
	pw, err := services.GenerateMerchantPassword()
	if err != nil {
		return err
	}
	if err := services.SetMerchantPassword(ctx, merchantID, pw); err != nil {
		return err
	}
	fmt.Printf("New bot password for %s (#%d): %s\nLog in with: /login %d %s\n", m.Name, m.ID, pw, m.ID, pw)
	return nil
}

func runToken(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: token <role> <id> [ttl]")
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid id %q", args[1])
	}
	ttl := 24 * time.Hour
	if len(args) > 2 {
		if ttl, err = time.ParseDuration(args[2]); err != nil {
			return err
		}
	}
	tok, err := api.IssueToken(cfg.HTTP.JWTSecret, services.Actor{Role: args[0], ID: id}, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
