// Package app wires the application's services together in a samber/do
// container.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/nfrund/huddle/internal/attachments"
	"github.com/nfrund/huddle/internal/auth"
	"github.com/nfrund/huddle/internal/authz"
	"github.com/nfrund/huddle/internal/chat"
	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/delivery"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/logstore"
	"github.com/nfrund/huddle/internal/messagelog"
	"github.com/nfrund/huddle/internal/presence"
	"github.com/nfrund/huddle/internal/pubsub"
	"github.com/nfrund/huddle/internal/storage"
	"github.com/nfrund/huddle/internal/websocket"
)

// busBuffer is the per-subscriber buffer of the activity bus.
const busBuffer = 256

// Dependencies holds the core services the HTTP layer is built from.
type Dependencies struct {
	Config      *config.Config
	Logger      *slog.Logger
	Backend     domain.DurableLog
	Writer      *messagelog.Writer
	Log         *messagelog.Log
	Registry    *presence.Registry
	Router      *delivery.Router
	Policy      authz.Policy
	Bus         pubsub.Bus
	Coordinator *chat.Coordinator
	Accounts    *auth.Store
	Attachments *attachments.Service
	Bridge      *websocket.Bridge

	moderators *authz.FilePolicy
}

// NewInjector registers every service provider. Services are built lazily on
// first use; ctx bounds background work such as the moderator file watcher.
func NewInjector(ctx context.Context, cfg *config.Config, logger *slog.Logger) do.Injector {
	if logger == nil {
		logger = slog.Default()
	}
	i := do.New()

	do.ProvideValue(i, cfg)
	do.ProvideValue(i, logger)

	do.Provide(i, func(i do.Injector) (domain.DurableLog, error) {
		return logstore.Open(ctx, cfg.LogStore(), logger)
	})

	do.Provide(i, func(i do.Injector) (*messagelog.Writer, error) {
		backend, err := do.Invoke[domain.DurableLog](i)
		if err != nil {
			return nil, err
		}
		w := messagelog.NewWriter(backend, logger)
		w.Start()
		return w, nil
	})

	do.Provide(i, func(i do.Injector) (*messagelog.Log, error) {
		backend, err := do.Invoke[domain.DurableLog](i)
		if err != nil {
			return nil, err
		}
		writer, err := do.Invoke[*messagelog.Writer](i)
		if err != nil {
			return nil, err
		}

		messages, err := backend.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("restore message log: %w", err)
		}
		log := messagelog.New(messagelog.WithSink(writer), messagelog.WithLogger(logger))
		log.Restore(messages)
		logger.Info("Restored message log", "messages", len(messages), "backend", cfg.LogBackend)
		return log, nil
	})

	do.Provide(i, func(i do.Injector) (*presence.Registry, error) {
		return presence.NewRegistry(presence.WithLogger(logger)), nil
	})

	do.Provide(i, func(i do.Injector) (*delivery.Router, error) {
		registry, err := do.Invoke[*presence.Registry](i)
		if err != nil {
			return nil, err
		}
		return delivery.NewRouter(registry, logger), nil
	})

	do.Provide(i, func(i do.Injector) (*authz.FilePolicy, error) {
		p, err := authz.NewFilePolicy(cfg.AdminFile, logger)
		if err != nil {
			return nil, err
		}
		if err := p.Watch(ctx); err != nil {
			logger.Warn("Moderator file will not be hot-reloaded", "path", cfg.AdminFile, "error", err)
		}
		return p, nil
	})

	do.Provide(i, func(i do.Injector) (authz.Policy, error) {
		policies := authz.Any{authz.NewStatic(cfg.AdminIdentities...)}
		if cfg.AdminFile != "" {
			file, err := do.Invoke[*authz.FilePolicy](i)
			if err != nil {
				return nil, err
			}
			policies = append(policies, file)
		}
		return policies, nil
	})

	do.Provide(i, func(i do.Injector) (pubsub.Bus, error) {
		bus := pubsub.NewWatermillBridge(busBuffer, logger)
		if err := chat.SubscribeActivityLog(ctx, bus, logger); err != nil {
			bus.Close()
			return nil, fmt.Errorf("subscribe activity log: %w", err)
		}
		return bus, nil
	})

	do.Provide(i, func(i do.Injector) (*chat.Coordinator, error) {
		log, err := do.Invoke[*messagelog.Log](i)
		if err != nil {
			return nil, err
		}
		registry, err := do.Invoke[*presence.Registry](i)
		if err != nil {
			return nil, err
		}
		router, err := do.Invoke[*delivery.Router](i)
		if err != nil {
			return nil, err
		}
		policy, err := do.Invoke[authz.Policy](i)
		if err != nil {
			return nil, err
		}
		bus, err := do.Invoke[pubsub.Bus](i)
		if err != nil {
			return nil, err
		}
		return chat.NewCoordinator(log, registry, router, policy,
			chat.WithPublisher(bus), chat.WithLogger(logger)), nil
	})

	do.Provide(i, func(i do.Injector) (*auth.Store, error) {
		return auth.NewStore(cfg.BcryptCost, logger), nil
	})

	do.Provide(i, func(i do.Injector) (*attachments.Service, error) {
		store, err := storage.NewDiskStore(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return attachments.NewService(store, cfg.MaxUploadSize, cfg.AllowedMIMETypes, logger), nil
	})

	do.Provide(i, func(i do.Injector) (*websocket.Bridge, error) {
		coord, err := do.Invoke[*chat.Coordinator](i)
		if err != nil {
			return nil, err
		}
		return websocket.NewBridge(coord, websocket.Config{
			SendBuffer:   cfg.SendBuffer,
			MaxFrameSize: cfg.MaxFrameSize,
			RequireAuth:  cfg.RequireAuth,
		}, logger), nil
	})

	return i
}

// Build resolves every service from a fresh injector.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	return Resolve(NewInjector(ctx, cfg, logger))
}

// Resolve invokes all services from i.
func Resolve(i do.Injector) (*Dependencies, error) {
	var (
		deps = &Dependencies{}
		err  error
	)
	invokeInto(i, &deps.Config, &err)
	invokeInto(i, &deps.Logger, &err)
	invokeInto(i, &deps.Backend, &err)
	invokeInto(i, &deps.Writer, &err)
	invokeInto(i, &deps.Log, &err)
	invokeInto(i, &deps.Registry, &err)
	invokeInto(i, &deps.Router, &err)
	invokeInto(i, &deps.Policy, &err)
	invokeInto(i, &deps.Bus, &err)
	invokeInto(i, &deps.Coordinator, &err)
	invokeInto(i, &deps.Accounts, &err)
	invokeInto(i, &deps.Attachments, &err)
	invokeInto(i, &deps.Bridge, &err)
	if err == nil && deps.Config.AdminFile != "" {
		invokeInto(i, &deps.moderators, &err)
	}
	if err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}
	return deps, nil
}

// invokeInto resolves a T into dst unless an earlier invocation failed.
func invokeInto[T any](i do.Injector, dst *T, err *error) {
	if *err != nil {
		return
	}
	*dst, *err = do.Invoke[T](i)
}

// Close drains the durability writer and releases the backend, the bus and
// the moderator watcher. Live connections should already be closed.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if err := d.Writer.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain durable log: %w", err))
	}
	if err := d.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close durable log: %w", err))
	}
	if err := d.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	if d.moderators != nil {
		if err := d.moderators.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close moderator watcher: %w", err))
		}
	}
	return errors.Join(errs...)
}
