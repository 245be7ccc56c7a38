package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/abdulgalimov/unique-market/internal/cache/redis"
	"github.com/abdulgalimov/unique-market/internal/config"
	"github.com/abdulgalimov/unique-market/internal/crypto"
	"github.com/abdulgalimov/unique-market/internal/domain"
	"github.com/abdulgalimov/unique-market/internal/events"
	"github.com/abdulgalimov/unique-market/internal/market"
	"github.com/abdulgalimov/unique-market/internal/notify"
	"github.com/abdulgalimov/unique-market/internal/payment"
	"github.com/abdulgalimov/unique-market/internal/registry/evm"
	"github.com/abdulgalimov/unique-market/internal/registry/local"
	"github.com/abdulgalimov/unique-market/internal/store/memory"
	"github.com/abdulgalimov/unique-market/internal/store/postgres"
)

// Dependencies bundles everything the run modes need. Wire constructs it;
// the returned cleanup function tears it down in reverse order.
type Dependencies struct {
	Orders   domain.OrderStore
	Journal  domain.EventJournal
	Locks    domain.LockManager
	Signal   domain.SignalBus // nil in standalone mode
	Registry domain.TokenRegistry
	Ledger   *payment.Ledger
	Bus      *events.Bus
	Engine   *market.Engine
	Notifier *notify.Notifier

	// LocalRegistry is set in standalone mode only; the dev endpoints
	// mutate it directly.
	LocalRegistry *local.Registry

	// Operator is the marketplace address allowance checks run against.
	Operator string
}

// Wire builds the concrete dependency graph for the configured mode.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Ledger: payment.NewLedger(),
	}

	full := strings.ToLower(cfg.Mode) == "full"

	if full {
		// PostgreSQL order store and event journal.
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Orders = postgres.NewOrderStore(pgClient.Pool())
		deps.Journal = postgres.NewEventJournal(pgClient.Pool())

		// Redis locks and cross-instance event fan-out.
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Signal = redis.NewSignalBus(redisClient)

		// Chain-backed token registry, signing with the operator key.
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Operator.PrivateKey,
			EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
			KeyPassword:      cfg.Operator.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}
		registry, err := evm.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID, keyHex, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: evm registry: %w", err)
		}
		closers = append(closers, registry.Close)
		deps.Registry = registry
		deps.Operator = registry.Operator()
	} else {
		deps.Orders = memory.NewOrderStore()
		deps.Journal = memory.NewEventJournal(cfg.Engine.EventJournalSize)
		deps.Locks = market.NewKeyLocks()

		localReg := local.NewRegistry()
		deps.Registry = localReg
		deps.LocalRegistry = localReg
		deps.Operator = cfg.Operator.Address
		if deps.Operator == "" {
			deps.Operator = "market:operator"
		}
	}

	deps.Bus = events.NewBus(deps.Journal, deps.Signal, logger)

	deps.Engine = market.NewEngine(
		deps.Orders, deps.Registry, deps.Ledger, deps.Locks, deps.Bus,
		market.Config{Operator: deps.Operator, Escrow: cfg.Engine.EscrowAccount},
		logger,
	)

	// Notification channels.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
