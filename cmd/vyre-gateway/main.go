package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"vyre-gateway/access"
	"vyre-gateway/auth"
	"vyre-gateway/directory"
	"vyre-gateway/gateway"
	"vyre-gateway/moderation"
	"vyre-gateway/observability"
	"vyre-gateway/repositories"
	"vyre-gateway/runtime/workers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories, evaluator, directory
	userRepository := repositories.NewUserRepository(db)
	membershipRepository := repositories.NewMembershipRepository(db)
	messageRepository := repositories.NewMessageRepository(db, log, config.HistoryLimit)
	evaluator := access.NewEvaluator(membershipRepository, log)
	dir := directory.NewCache(userRepository)

	moderator, err := loadModerator(config)
	if err != nil {
		return fmt.Errorf("moderation setup failed: %w", err)
	}

	// 4. Gateway composition
	verifier := auth.NewVerifier(config.JWTSecret, config.AuthTokenDuration)
	gw := gateway.New(log, verifier, userRepository, messageRepository, evaluator, dir, moderator,
		gateway.Settings{
			OnlineDebounce:     config.OnlineDebounce,
			OfflineDebounce:    config.OfflineDebounce,
			SendBufferSize:     config.SendBufferSize,
			DeliveryBufferSize: config.DeliveryBufferSize,
			MaxMessageSize:     config.MaxMessageSize,
		})
	defer gw.Stop()

	// 5. Supervised workers: message fanout + connection census
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(gw.Pipeline())
	sup.Add(observability.NewCensus(log, config.CensusInterval, gw.Registry()))

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	// 7. HTTP server exposing the websocket endpoint
	mux := http.NewServeMux()
	mux.Handle("/ws", gw)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting gateway", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}

// loadModerator reads the censored word list, one word per line. An empty
// path or an empty file disables moderation.
func loadModerator(config Config) (*moderation.Moderator, error) {
	if config.CensoredWordsFile == "" {
		return nil, nil
	}

	replacement := []rune(config.CharReplacement)
	if len(replacement) != 1 {
		return nil, fmt.Errorf("CHARACTER_REPLACEMENT must be a single character, got %q", config.CharReplacement)
	}

	data, err := os.ReadFile(config.CensoredWordsFile)
	if err != nil {
		return nil, err
	}

	var words []string
	for _, line := range strings.Split(string(data), "\n") {
		if word := strings.TrimSpace(line); word != "" {
			words = append(words, word)
		}
	}
	return moderation.NewModerator(words, replacement[0])
}
