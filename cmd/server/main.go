// Command server runs the authorization broker. main wires dependencies from
// config and owns the process lifecycle; all flow logic lives under
// internal/broker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authgate/internal/broker/consent"
	"authgate/internal/broker/cookie"
	"authgate/internal/broker/handler"
	"authgate/internal/broker/identity"
	"authgate/internal/broker/provider"
	"authgate/internal/broker/service"
	"authgate/internal/broker/store/pending"
	"authgate/internal/broker/upstream"
	"authgate/internal/clients"
	"authgate/internal/platform/config"
	"authgate/internal/platform/httpserver"
	"authgate/internal/platform/logger"
	"authgate/internal/platform/metrics"
	platformredis "authgate/internal/platform/redis"
	"authgate/pkg/platform/audit"
)

func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err.Error())
		os.Exit(1)
	}

	signer, err := cookie.NewSigner(cfg.CookieSecret, "approved-clients")
	if err != nil {
		log.Error("cookie signer setup failed", "error", err.Error())
		os.Exit(1)
	}
	approved := cookie.NewApprovedClients(signer)

	// Redis is optional: without it the pending store is process-local and
	// the broker must run as a single instance.
	var store service.PendingStore = pending.NewInMemory()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis setup failed", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		store = pending.NewRedis(redisClient.Client)
		defer redisClient.Close()
		log.Info("pending store backed by redis")
	} else {
		log.Warn("redis not configured, using in-memory pending store")
	}

	var publisher audit.Publisher = audit.NewMemoryPublisher()
	var kafkaPublisher *audit.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err = audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka setup failed", "error", err.Error())
			os.Exit(1)
		}
		publisher = kafkaPublisher
		log.Info("audit events published to kafka", "topic", cfg.Kafka.Topic)
	}

	exchanger := upstream.NewClient(upstream.Config{
		ClientID:     cfg.Upstream.ClientID,
		ClientSecret: cfg.Upstream.ClientSecret,
		AuthorizeURL: cfg.Upstream.AuthorizeURL,
		TokenURL:     cfg.Upstream.TokenURL,
		RedirectURI:  cfg.ExternalBaseURL + "/oauth/callback",
	})
	resolver := identity.NewResolver(cfg.Upstream.APIBaseURL, nil)

	registry := clients.NewRegistry()
	host := provider.NewLocal(registry, cfg.CookieSecret)

	m := metrics.New()
	svc, err := service.New(host, store, exchanger, resolver, approved,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithAuditPublisher(publisher),
		service.WithServerInfo(consent.ServerInfo{
			Name:        cfg.Server.Name,
			LogoURL:     cfg.Server.LogoURL,
			Description: cfg.Server.Description,
		}),
		service.WithPendingTTL(cfg.PendingTTL),
	)
	if err != nil {
		log.Error("service setup failed", "error", err.Error())
		os.Exit(1)
	}
	host.SetRefreshHook(svc.RefreshHook())

	h := handler.New(svc, host, host, approved, log, m, handler.Options{
		SecureCookies: strings.HasPrefix(cfg.ExternalBaseURL, "https://"),
		CSRFTTL:       cfg.CSRFTTL,
		BindingTTL:    cfg.PendingTTL,
		ApprovedTTL:   cfg.ApprovedClientsTTL,
	})

	router := chi.NewRouter()
	h.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting authgate", "addr", cfg.Addr, "external_url", cfg.ExternalBaseURL)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(ctx); err != nil {
			log.Error("audit publisher shutdown failed", "error", err.Error())
		}
	}
}
