// Command server runs the GlobalReach backend: the REST API the CRM
// frontend talks to, the provider webhook receivers, the OAuth flow and
// the callback relay.
//
// main only wires dependencies. Postgres, Redis and Kafka are each
// optional: without them the process falls back to in-memory stores and a
// no-op event publisher, which is the local development mode.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	cfghandler "globalreach/internal/channelcfg/handler"
	cfgservice "globalreach/internal/channelcfg/service"
	cfgstore "globalreach/internal/channelcfg/store"
	"globalreach/internal/events"
	httpapi "globalreach/internal/http"
	leadhandler "globalreach/internal/lead/handler"
	leadmetrics "globalreach/internal/lead/metrics"
	leadservice "globalreach/internal/lead/service"
	leadstore "globalreach/internal/lead/store"
	"globalreach/internal/message/channels"
	msghandler "globalreach/internal/message/handler"
	msgmetrics "globalreach/internal/message/metrics"
	msgmodels "globalreach/internal/message/models"
	msgservice "globalreach/internal/message/service"
	msgstore "globalreach/internal/message/store"
	oauthhandler "globalreach/internal/oauth/handler"
	"globalreach/internal/oauth/providers"
	oauthservice "globalreach/internal/oauth/service"
	oauthstore "globalreach/internal/oauth/store"
	"globalreach/internal/platform/config"
	"globalreach/internal/platform/httpserver"
	"globalreach/internal/platform/kafka"
	"globalreach/internal/platform/logger"
	"globalreach/internal/platform/metrics"
	"globalreach/internal/platform/postgres"
	platformredis "globalreach/internal/platform/redis"
	"globalreach/internal/platform/token"
	relayhandler "globalreach/internal/relay/handler"
	relaystore "globalreach/internal/relay/store"
	"globalreach/internal/webhook/dedupe"
	webhookhandler "globalreach/internal/webhook/handler"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	m := metrics.New()

	// optional infrastructure: each nil result selects a fallback
	pool, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	if producer != nil {
		if err := kafka.EnsureTopics(ctx, producer, events.AllTopics()...); err != nil {
			return err
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	eventMetrics := events.NewMetrics()
	if producer != nil {
		publisher = events.NewKafkaPublisher(producer, log, events.WithMetrics(eventMetrics))
	}
	defer publisher.Close()

	// stores: postgres when configured, memory otherwise
	var (
		leadStore    leadservice.Store            = leadstore.NewInMemory()
		messageStore msgservice.Store             = msgstore.NewInMemory()
		configStore  cfgservice.Store             = cfgstore.NewInMemory()
		connStore    oauthservice.ConnectionStore = oauthstore.NewInMemory()
	)
	if pool != nil {
		leadStore = leadstore.NewPostgres(pool.Pool)
		messageStore = msgstore.NewPostgres(pool.Pool)
		configStore = cfgstore.NewPostgres(pool.Pool)
		connStore = oauthstore.NewPostgres(pool.Pool)
	}

	var (
		stateStore  oauthstore.StateStore  = oauthstore.NewInMemoryState()
		deduper     dedupe.Deduper         = dedupe.NewInMemory()
		targetStore relaystore.TargetStore = relaystore.NewInMemoryTarget()
	)
	if rdb != nil {
		stateStore = oauthstore.NewRedisState(rdb.Client)
		deduper = dedupe.NewRedis(rdb.Client)
		targetStore = relaystore.NewRedisTarget(rdb.Client)
	}

	// services
	leadSvc, err := leadservice.New(leadStore, publisher,
		leadservice.WithMetrics(leadmetrics.New()))
	if err != nil {
		return err
	}
	configSvc, err := cfgservice.New(configStore)
	if err != nil {
		return err
	}

	provs := buildProviders(cfg.Providers, log)
	oauthSvc, err := oauthservice.New(provs, connStore, stateStore,
		cfg.Server.PublicBaseURL+"/api/oauth/callback", cfg.Providers.StateTTL, log)
	if err != nil {
		return err
	}

	senders := []channels.Sender{
		channels.NewWhatsAppSender(oauthSvc.TokenSource("meta")),
		channels.NewEmailSender(),
	}
	messageSvc, err := msgservice.New(messageStore, leadSvc, configSvc, senders,
		publisher, log, msgservice.WithMetrics(msgmetrics.New()))
	if err != nil {
		return err
	}

	// handlers
	jwtValidator := token.NewValidator(cfg.Auth.JWTSigningKey)
	router := httpapi.New(log, m, cfg.Server.AllowedOrigins, healthDeps(pool, rdb),
		leadhandler.New(leadSvc, log, jwtValidator),
		msghandler.New(messageSvc, log, jwtValidator),
		oauthhandler.New(oauthSvc, log, jwtValidator),
		cfghandler.New(configSvc, log, cfg.Auth.AdminTokenHash),
		webhookhandler.New(messageSvc, configSvc, deduper, log),
		relayhandler.New(targetStore, cfg.Auth.AdminTokenHash, cfg.Relay.ForwardTimeout, log,
			relayhandler.WithFailureThreshold(cfg.Relay.FailureThreshold)),
	)

	srv := httpserver.New(cfg.Server.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	consumer, err := buildConsumer(cfg.Kafka, messageSvc, log, eventMetrics)
	if err != nil {
		return err
	}
	if consumer != nil {
		group.Go(func() error {
			err := consumer.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if consumer != nil {
			consumer.Close()
		}
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// buildProviders registers every provider whose credentials are set;
// deployments that only use one channel simply leave the others blank.
func buildProviders(cfg config.Providers, log *slog.Logger) []providers.Provider {
	var out []providers.Provider

	if ms, err := providers.NewMicrosoft(providers.Credentials{
		ClientID:     cfg.MicrosoftClientID,
		ClientSecret: cfg.MicrosoftClientSecret,
	}, cfg.MicrosoftTenant); err == nil {
		out = append(out, ms)
	} else {
		log.Info("microsoft provider disabled", "reason", err)
	}

	if g, err := providers.NewGoogle(providers.Credentials{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
	}); err == nil {
		out = append(out, g)
	} else {
		log.Info("google provider disabled", "reason", err)
	}

	if meta, err := providers.NewMeta(providers.Credentials{
		ClientID:     cfg.MetaClientID,
		ClientSecret: cfg.MetaClientSecret,
	}); err == nil {
		out = append(out, meta)
	} else {
		log.Info("meta provider disabled", "reason", err)
	}

	return out
}

// buildConsumer subscribes to messaging.status so receipts received by
// another replica's webhook still land in this replica's view promptly.
// Re-applying a receipt this replica already processed is a no-op because
// delivery states only move forward.
func buildConsumer(cfg config.Kafka, messageSvc *msgservice.Service, log *slog.Logger, m *events.Metrics) (*events.Consumer, error) {
	router := events.NewRouter(log)
	router.Register(events.TopicMessagingStatus, events.TopicHandlerFunc(
		func(ctx context.Context, msg *events.Message) error {
			var event events.Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return err
			}
			var payload struct {
				ProviderMessageID string           `json:"provider_message_id"`
				Status            msgmodels.Status `json:"status"`
				ErrorCode         string           `json:"error_code"`
			}
			if err := json.Unmarshal(event.Payload, &payload); err != nil {
				return err
			}
			if payload.ProviderMessageID == "" {
				return nil
			}
			return messageSvc.ApplyReceipt(ctx, payload.ProviderMessageID, payload.Status, payload.ErrorCode)
		}))

	client, err := kafka.NewConsumer(cfg, router.Topics()...)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}
	return events.NewConsumer(client, router, log, m), nil
}

func healthDeps(pool *postgres.Pool, rdb *platformredis.Client) []httpapi.Dependency {
	var deps []httpapi.Dependency
	if pool != nil {
		deps = append(deps, httpapi.Dependency{Name: "postgres", Checker: pool})
	}
	if rdb != nil {
		deps = append(deps, httpapi.Dependency{Name: "redis", Checker: rdb})
	}
	return deps
}
