package main

import (
	"context"   // Startup and shutdown deadlines
	"errors"    // Error matching
	"net/http"  // HTTP server
	"os/signal" // Shutdown on SIGINT/SIGTERM
	"syscall"   // Signal numbers
	"time"      // Timeouts

	"kiosk_system/internal/api"        // Kiosk HTTP handlers
	"kiosk_system/internal/config"     // Configuration
	"kiosk_system/internal/db"         // Database connection
	"kiosk_system/internal/identity"   // Identity provider
	"kiosk_system/internal/kakaopay"   // Payment gateway proxy
	"kiosk_system/internal/localstore" // Durable per-session storage
	"kiosk_system/internal/menu"       // Menu store
	"kiosk_system/internal/metrics"    // Prometheus collectors
	"kiosk_system/internal/payment"    // Payment handshake
	"kiosk_system/internal/presence"   // Presence sources
	"kiosk_system/internal/session"    // Session registry

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/nats-io/nats.go"   // NATS client
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.NewEntry(logrus.StandardLogger())
	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Users and menus live in MySQL
	gdb, err := db.Open(db.DSN(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}

	// Session storage and the menu cache live in Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	source, closePresence := openPresence(ctx, cfg, log)
	defer closePresence()

	store := localstore.NewRedis(redisClient, cfg.SessionTTL)

	var registry *session.Registry
	met := metrics.New(func() int { return registry.Len() })

	gateway := payment.NewHTTPGateway(cfg.PaymentAPIURL, nil, cfg.PaymentTimeout)
	handshake := payment.NewHandshake(gateway, store,
		payment.WithOutcome(met.ObservePayment),
		payment.WithLogger(log.WithField("component", "payment")))

	menus := menu.NewStore(gdb, redisClient)
	provider := identity.NewDBProvider(gdb, identity.WithStores(menus)) // New admins get a store and its menu
	registry = session.NewRegistry(session.Config{
		Provider:     provider,
		Lookup:       provider,
		Presence:     source,
		Identities:   store,
		Payments:     handshake,
		Log:          log.WithField("component", "session"),
		OnTransition: met.ObserveTransition,
	})
	defer registry.Shutdown()
	go registry.Run(ctx, cfg.SessionSweep) // Evict machines whose session key expired

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	api.RegisterRoutes(r, api.Deps{
		Registrar:    provider,
		Sessions:     registry,
		Menus:        menus,
		Payments:     handshake,
		JWTSecret:    cfg.JWTSecret,
		TokenTTL:     cfg.SessionTTL,
		SecureCookie: cfg.IsProd,
	})
	r.GET("/metrics", gin.WrapH(met.Handler()))

	// This server doubles as the payment API when a KakaoPay key is configured
	if cfg.KakaoAdminKey != "" {
		kakaopay.Register(r, kakaopay.NewClient(kakaopay.Config{
			BaseURL:   cfg.KakaoBaseURL,
			AdminKey:  cfg.KakaoAdminKey,
			CID:       cfg.KakaoCID,
			PublicURL: cfg.PublicURL,
			Timeout:   cfg.PaymentTimeout,
		}, nil))
	} else {
		log.Warn("KAKAO_ADMIN_KEY not set, payment API must be served elsewhere")
	}

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	go func() {
		log.Info("Server running on " + cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err.Error()).Error("Graceful shutdown failed")
	}
}

// openPresence connects the configured presence backend
func openPresence(ctx context.Context, cfg *config.Config, log *logrus.Entry) (presence.Source, func()) {
	if cfg.PresenceBackend == config.PresenceMemory {
		log.Warn("Using in-memory presence, signals cannot be set from outside this process")
		return presence.NewMemorySource(), func() {}
	}
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("kiosk-server"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithField("error", err.Error()).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}))
	if err != nil {
		logrus.Fatalf("failed to connect to NATS: %v", err)
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	kv, err := presence.OpenBucket(openCtx, nc, cfg.PresenceBucket)
	if err != nil {
		logrus.Fatalf("failed to open presence bucket: %v", err)
	}
	return presence.NewNATSSource(kv, log.WithField("component", "presence")), func() { _ = nc.Drain() }
}
