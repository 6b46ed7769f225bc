package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ferreirogomes/ryzer/cache"
	"github.com/ferreirogomes/ryzer/config"
	"github.com/ferreirogomes/ryzer/events"
	"github.com/ferreirogomes/ryzer/handlers"
	"github.com/ferreirogomes/ryzer/services"
)

// serveCmd sobe a API e os processos de apoio até receber SIGINT/SIGTERM.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sobe a API HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.SeedFile != "" {
		if err := seedFromFile(ctx, store, cfg.SeedFile, log); err != nil {
			return err
		}
	}

	head, err := store.Head(ctx)
	if err != nil {
		return fmt.Errorf("falha ao ler o fim do ledger: %w", err)
	}
	log.Info("ledger carregado", zap.Int64("last_id", head.LastID), zap.Int64("count", head.Count))

	feed := handlers.NewFeedHub(log)
	publisher, err := newPublisher(ctx, cfg, feed, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var summaryCache services.SummaryCache
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// O resumo continua correto sem cache, só mais lento.
			log.Warn("redis indisponível, resumo sem cache", zap.Error(err))
		} else {
			defer rdb.Close()
			summaryCache = cache.NewSummaryCache(rdb, cfg.SummaryCacheKey)
		}
	}

	locks := services.NewAssetLocks(cfg.LockTimeout)
	engine := services.NewPurchaseEngine(store, locks, services.NewSequencer(head), publisher, log)
	queries := services.NewQueryService(store, summaryCache, log)
	reconciler := services.NewReconciler(store, locks, cfg.ReconcileInterval, log)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: handlers.NewRouter(engine, queries, feed, log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("servidor HTTP rodando", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("servidor HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return reconciler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("encerrando servidor HTTP")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		// Conexões de websocket são sequestradas e não entram no Shutdown.
		feed.Close()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("serviço encerrado")
	return err
}

const (
	brokerQueueSize = 1024
	brokerTimeout   = 5 * time.Second
)

// newPublisher monta o fan-out de eventos: sempre o feed, mais o broker configurado.
func newPublisher(ctx context.Context, cfg *config.Config, feed *handlers.FeedHub, log *zap.Logger) (events.Publisher, error) {
	switch cfg.EventsDriver {
	case "kafka":
		log.Info("publicando eventos no kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		broker := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return events.Multi{feed, events.NewAsync(broker, brokerQueueSize, brokerTimeout, log)}, nil
	case "amqp":
		amqpPub, err := events.DialAMQP(ctx, cfg.AMQPURL, cfg.AMQPExchange, 5, log)
		if err != nil {
			return nil, err
		}
		log.Info("publicando eventos no rabbitmq", zap.String("exchange", cfg.AMQPExchange))
		return events.Multi{feed, events.NewAsync(amqpPub, brokerQueueSize, brokerTimeout, log)}, nil
	default:
		return events.Multi{feed}, nil
	}
}
