package http

import (
	"net/http"

	"github.com/go-account-api/internal/application/auth"
	"github.com/go-account-api/internal/application/token"
	"github.com/go-account-api/internal/config"
	"github.com/go-account-api/internal/domain"
	"github.com/go-account-api/internal/infrastructure/dynamo"
	"github.com/go-account-api/internal/infrastructure/smtp"
	"github.com/go-account-api/internal/pkg/clock"
	"github.com/go-account-api/internal/transport/http/handler"
	appmiddleware "github.com/go-account-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo      *dynamo.UserRepo
	Mailer        smtp.Mailer
	SMSSender     auth.SMSSender
	Google        auth.FederatedVerifier
	Apple         auth.FederatedVerifier
	Passkeys      auth.PasskeyProvider
	PasskeyParser auth.PasskeyParser
	Clock         clock.Clock
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	tokenSvc := token.NewService(cfg.JWTSecret, cfg.SessionTokenDuration(), clk)
	authSvc := auth.NewService(auth.Deps{
		Users:         deps.UserRepo,
		Mailer:        deps.Mailer,
		SMS:           deps.SMSSender,
		Google:        deps.Google,
		Apple:         deps.Apple,
		Passkeys:      deps.Passkeys,
		PasskeyParser: deps.PasskeyParser,
		Tokens:        tokenSvc,
		Clock:         clk,
		AppName:       cfg.AppName,
		AppURL:        cfg.AppURL,
	})

	authMw := appmiddleware.Auth(tokenSvc, deps.UserRepo)

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	sessionH := handler.NewSessionHandler(authSvc)
	accountH := handler.NewAccountHandler(authSvc)
	resetH := handler.NewPasswordResetHandler(authSvc)
	otpH := handler.NewOTPHandler(authSvc)
	totpH := handler.NewTOTPHandler(authSvc)
	federatedH := handler.NewFederatedHandler(authSvc)
	passkeyH := handler.NewPasskeyHandler(authSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		r.With(sensitiveRL.Limit).Post("/auth/register", accountH.Register)
		r.With(sensitiveRL.Limit).Post("/auth/invite/accept", accountH.AcceptInvite)
		r.Post("/auth/email/confirm", accountH.ConfirmEmail)

		r.With(sensitiveRL.Limit).Post("/auth/password/login", sessionH.Login)
		r.With(sensitiveRL.Limit).Post("/auth/password/request", resetH.Request)
		r.With(sensitiveRL.Limit).Post("/auth/password/update", resetH.Update)

		r.With(sensitiveRL.Limit).Post("/auth/otp/send", otpH.Send)
		r.With(sensitiveRL.Limit).Post("/auth/otp/login", otpH.Login)
		r.With(sensitiveRL.Limit).Post("/auth/totp/login", totpH.Login)
		r.With(sensitiveRL.Limit).Post("/auth/{provider:google|apple}", federatedH.Login)
		r.With(sensitiveRL.Limit).Post("/auth/passkey/login-request", passkeyH.BeginLogin)
		r.With(sensitiveRL.Limit).Post("/auth/passkey/login", passkeyH.FinishLogin)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/auth/session", sessionH.GetCurrent)
			r.Post("/auth/logout", sessionH.Logout)

			r.Post("/auth/email/request", accountH.RequestEmailVerification)
			r.Patch("/auth/mfa-method", accountH.SetMFAMethod)

			r.Post("/auth/totp/request", totpH.Request)
			r.Post("/auth/totp/enable", totpH.Enable)
			r.Post("/auth/totp/disable", totpH.Disable)

			r.Post("/auth/{provider:google|apple}/enable", federatedH.Enable)
			r.Post("/auth/{provider:google|apple}/disable", federatedH.Disable)

			r.Post("/auth/passkey/register-request", passkeyH.BeginRegistration)
			r.Post("/auth/passkey/register", passkeyH.FinishRegistration)
			r.Post("/auth/passkey/disable", passkeyH.Disable)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Post("/auth/invite/send", accountH.SendInvite)
			})
		})
	})

	return r
}
