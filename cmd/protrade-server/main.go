package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"protrade/internal/auth"
	"protrade/internal/broker"
	"protrade/internal/config"
	"protrade/internal/domain"
	"protrade/internal/gateway"
	"protrade/internal/httpapi"
	"protrade/internal/journal"
	"protrade/internal/util"
)

func main() {
	// Load config.
	cfgPath := "configs/protrade.yaml"
	if p := os.Getenv("PROTRADE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	// Credentials are registered whether or not they are configured; the
	// adapters reject unauthenticated calls at first use.
	creds := auth.NewStore(
		auth.NewCredential(domain.BrokerStock, cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, "trading"),
		auth.NewCredential(domain.BrokerCrypto, cfg.Gemini.APIKey, cfg.Gemini.APISecret, "trading"),
	)
	for _, id := range []string{domain.BrokerStock, domain.BrokerCrypto} {
		logger.Info("broker credentials", "broker", id, "configured", creds.Configured(id))
	}

	stock := broker.NewAlpacaBroker(creds, cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Alpaca.DataURL)
	crypto := broker.NewGeminiBroker(creds, auth.NewSigner(auth.NewNonceSequencer()), cfg.Gemini.BaseURL)

	var jn *journal.Journal
	if cfg.Journal.Path != "" {
		jn, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("opening order journal: %v", err)
		}
		defer jn.Close()
	}

	retry := gateway.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay}
	gw := gateway.New(logger, retry, recorderOrNil(jn), stock, crypto)
	srv := httpapi.NewServer(gw, creds, jn, logger)

	// Start HTTP server.
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("gateway listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// recorderOrNil avoids storing a typed nil in the gateway's interface field.
func recorderOrNil(jn *journal.Journal) gateway.OrderRecorder {
	if jn == nil {
		return nil
	}
	return jn
}
