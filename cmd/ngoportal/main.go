package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	adapthttp "ngoportal/internal/adapter/http"
	"ngoportal/internal/adapter/mailer"
	"ngoportal/internal/adapter/memory"
	"ngoportal/internal/adapter/postgres"
	redisadapter "ngoportal/internal/adapter/redis"
	"ngoportal/internal/app"
	"ngoportal/internal/config"
	"ngoportal/internal/domain"
	"ngoportal/internal/phonepe"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config load failed")
	}
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
		log.Warn("debug posture enabled; error detail will be exposed")
	}

	var (
		users     domain.UserRepository
		sessions  domain.SessionRepository
		remember  domain.RememberTokenRepository
		donations domain.DonationRepository
		projects  domain.ProjectRepository
	)

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("db open failed")
		}
		defer func() { _ = db.Close() }()
		users = db
		donations = db
		remember = postgres.NewRememberTokenRepo(db)
		projects = postgres.NewProjectRepo(db)
		sessions = postgres.NewSessionRepo(db)
	} else {
		log.Warn("NGO_DATABASE_URL not set; using in-memory stores")
		mem := memory.New()
		users = mem
		donations = mem
		remember = mem
		projects = mem.Projects()
		sessions = mem.Sessions()
	}

	switch cfg.SessionBackend {
	case "redis":
		repo, err := redisadapter.NewSessionRepo(cfg.RedisAddr, cfg.RedisPassword, cfg.Auth.IdleTimeout)
		if err != nil {
			log.WithError(err).Fatal("redis connect failed")
		}
		sessions = repo
	case "memory":
		sessions = memory.New().Sessions()
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go app.SweepSessions(sweepCtx, sessions, cfg.Auth.IdleTimeout, 10*time.Minute, log)

	var receipts app.ReceiptMailer
	if cfg.SendGridKey != "" {
		receipts = mailer.NewSendGrid(cfg.SendGridKey, "NGO Portal", cfg.MailFrom)
	} else {
		receipts = mailer.NewLog(log)
	}

	gateway := phonepe.New(cfg.PhonePe.MerchantID, cfg.PhonePe.SaltKey, cfg.PhonePe.SaltIndex,
		cfg.PhonePe.BaseURL, cfg.PhonePe.PayPath)

	authSvc := app.NewAuthService(users, sessions, remember, cfg.Auth, log)
	csrfGuard := app.NewCSRFGuard(sessions, cfg.Auth.CSRFTTL)
	donationSvc, err := app.NewDonationService(donations, gateway, receipts,
		cfg.Auth.PhonePattern, cfg.PhonePe.RedirectURL, cfg.PhonePe.CallbackURL, log)
	if err != nil {
		log.WithError(err).Fatal("donation service init failed")
	}
	projectSvc := app.NewProjectService(projects, donations)
	limiter := app.NewLoginLimiter(cfg.Auth.LoginRate, cfg.Auth.LoginBurst)

	oidcCfg := adapthttp.OIDCConfig{}
	if cfg.OIDC.Enabled {
		provider, err := oidc.NewProvider(context.Background(), cfg.OIDC.IssuerURL)
		if err != nil {
			log.WithError(err).Fatal("oidc provider init failed")
		}
		oidcCfg = adapthttp.OIDCConfig{
			Enabled:  true,
			Provider: provider,
			OAuth2: oauth2.Config{
				ClientID:     cfg.OIDC.ClientID,
				ClientSecret: cfg.OIDC.ClientSecret,
				RedirectURL:  cfg.OIDC.RedirectURL,
				Endpoint:     provider.Endpoint(),
				Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
			},
		}
	}

	h := adapthttp.New(authSvc, csrfGuard, donationSvc, projectSvc, limiter, gateway, oidcCfg, log, cfg.Debug).Handler()
	log.WithField("addr", cfg.Addr).Info("listening")
	if err := http.ListenAndServe(cfg.Addr, h); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server exited")
	}
}
