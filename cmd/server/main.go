package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vyktorion/pwa-sub000/internal/chat"
	"github.com/vyktorion/pwa-sub000/internal/config"
	"github.com/vyktorion/pwa-sub000/internal/events"
	ginserver "github.com/vyktorion/pwa-sub000/internal/http/gin"
	"github.com/vyktorion/pwa-sub000/internal/obs"
	"github.com/vyktorion/pwa-sub000/internal/push"
	"github.com/vyktorion/pwa-sub000/internal/queue"
	"github.com/vyktorion/pwa-sub000/internal/relay"
	memorystore "github.com/vyktorion/pwa-sub000/internal/storage/memory"
	mongostore "github.com/vyktorion/pwa-sub000/internal/storage/mongo"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger := obs.NewLogger("dev")
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	var (
		conversations chat.ConversationStore
		messages      chat.MessageStore
		subscriptions chat.SubscriptionStore
	)
	switch cfg.StorageMode {
	case "memory":
		conversations = memorystore.NewConversationRepository()
		messages = memorystore.NewMessageRepository()
		subscriptions = memorystore.NewSubscriptionRepository()
		logger.Warn("using in-memory storage, data will not survive restarts")
	default:
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Error("mongo init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(shutdownCtx)
		}()
		convRepo := mongostore.NewConversationRepository(client.DB)
		msgRepo := mongostore.NewMessageRepository(client.DB)
		subRepo := mongostore.NewSubscriptionRepository(client.DB)
		for _, ensure := range []func(context.Context) error{
			convRepo.EnsureIndexes, msgRepo.EnsureIndexes, subRepo.EnsureIndexes,
		} {
			if err := ensure(ctx); err != nil {
				logger.Error("index creation failed", "error", err)
				os.Exit(1)
			}
		}
		conversations = convRepo
		messages = msgRepo
		subscriptions = subRepo
	}

	hub := relay.NewHub()
	defer hub.Close()
	clientRelay := &relay.Relay{Hub: hub, Logger: logger}

	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		logger.Warn("VAPID keys not configured, push deliveries will be rejected by endpoints")
	}
	dispatcher := &push.Dispatcher{
		Sender: &push.WebPushSender{
			Subscriber:      cfg.VAPIDSubscriber,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		},
		MaxRetries: cfg.PushMaxRetries,
		BaseDelay:  cfg.PushBaseDelay,
		Logger:     logger,
	}
	worker := &push.Worker{
		Subscriptions: subscriptions,
		Dispatcher:    dispatcher,
		Arrivals:      clientRelay,
		Logger:        logger,
	}

	notifier := &push.Notifier{Worker: worker, QueueName: cfg.PushQueue, Logger: logger}
	if cfg.RedisURL != "" {
		client, err := queue.NewAsynqClient(cfg.RedisURL)
		if err != nil {
			logger.Error("queue client init failed", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		notifier.Queue = client

		server, err := queue.NewAsynqServer(cfg.RedisURL, cfg.PushConcurrency, map[string]int{cfg.PushQueue: 1, "default": 1}, logger)
		if err != nil {
			logger.Error("queue server init failed", "error", err)
			os.Exit(1)
		}
		worker.Register(server)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error("queue server stopped", "error", err)
			}
		}()
		logger.Info("push delivery queue started", "queue", cfg.PushQueue, "concurrency", cfg.PushConcurrency)
	} else {
		logger.Info("no redis configured, push delivery runs in-process")
	}

	service := &chat.Service{
		Conversations: conversations,
		Messages:      messages,
		Subscriptions: subscriptions,
		Accountant: &chat.Accountant{
			Conversations: conversations,
			Messages:      messages,
			Window:        cfg.UnreadWindow,
		},
		Notifier: notifier,
		Logger:   logger,
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		service.Events = &events.Publisher{Producer: producer, TopicPrefix: cfg.KafkaTopicPrefix}
		logger.Info("event publishing enabled", "brokers", cfg.KafkaBrokers)
	}

	router := ginserver.NewRouter(cfg.Env, service, hub, logger)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("chat server starting", "addr", cfg.HTTPAddr, "env", cfg.Env, "storage", cfg.StorageMode)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("chat server stopped")
}
