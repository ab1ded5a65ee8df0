// Command main is the entry point for the Loop API server.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loop/internal/bootstrap"
	"loop/internal/config"
	"loop/internal/middleware"

	_ "github.com/joho/godotenv/autoload"
)

// @title Loop API
// @version 1.0
// @description Branching short-form content platform: loops, branches, feeds, circles, gifts and live streams
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@loop.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.Init(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	rt.Start()

	app := rt.Server.App()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		middleware.Logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// HTTP first so no request publishes into a draining dispatcher.
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			middleware.Logger.Error("Server shutdown error", slog.String("error", err.Error()))
		}
		if err := rt.Shutdown(shutdownCtx); err != nil {
			middleware.Logger.Error("Runtime shutdown error", slog.String("error", err.Error()))
		}
	}()

	middleware.Logger.Info("Server starting", slog.String("port", cfg.Port), slog.String("env", cfg.Env))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
