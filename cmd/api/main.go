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

	"github.com/go-account-api/internal/application/auth"
	"github.com/go-account-api/internal/config"
	appleinfra "github.com/go-account-api/internal/infrastructure/apple"
	"github.com/go-account-api/internal/infrastructure/dynamo"
	googleinfra "github.com/go-account-api/internal/infrastructure/google"
	"github.com/go-account-api/internal/infrastructure/smtp"
	"github.com/go-account-api/internal/infrastructure/sns"
	webauthnx "github.com/go-account-api/internal/infrastructure/webauthn"
	"github.com/go-account-api/internal/pkg/clock"
	transporthttp "github.com/go-account-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap the users table (created if it doesn't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTableUsers)

	// SMTP mailer.
	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender (optional — graceful fallback).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	// Federated identity verifiers (each optional).
	var googleVerifier, appleVerifier auth.FederatedVerifier
	if cfg.GoogleClientID != "" {
		googleVerifier = googleinfra.NewVerifier(cfg.GoogleClientID)
	} else {
		log.Println("WARN: Google login disabled, GOOGLE_CLIENT_ID not set")
	}
	if cfg.AppleClientID != "" {
		v, err := appleinfra.NewVerifier(context.Background(), cfg.AppleClientID)
		if err != nil {
			log.Fatalf("apple verifier: %v", err)
		}
		appleVerifier = v
	} else {
		log.Println("WARN: Apple login disabled, APPLE_CLIENT_ID not set")
	}

	// WebAuthn relying party.
	passkeys, err := webauthnx.NewProvider(cfg)
	if err != nil {
		log.Fatalf("webauthn provider: %v", err)
	}

	deps := &transporthttp.Deps{
		UserRepo:  dynamo.NewUserRepo(dynamoClient, cfg.DynamoTableUsers),
		Mailer:    mailer,
		SMSSender: smsSender,
		Google:    googleVerifier,
		Apple:     appleVerifier,
		Passkeys:  passkeys,
		Clock:     clock.New(),
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
