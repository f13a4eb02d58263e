// Command taskdeck-watch signs in to a TaskDeck backend, keeps the push
// channel open, and logs every domain-change invalidation it receives.
// It doubles as a smoke test for a deployment: if the watcher stays Open
// and heartbeat samples flow, the realtime path works end to end.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskdeck-client/internal/apiclient"
	"taskdeck-client/internal/config"
	"taskdeck-client/internal/observability/logging"
	"taskdeck-client/internal/realtime"
	"taskdeck-client/internal/session"
	pkgconfig "taskdeck-client/pkg/config"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	identity := os.Getenv("TASKDECK_IDENTITY")
	secret := os.Getenv("TASKDECK_SECRET")
	if identity == "" || secret == "" {
		logger.Error("TASKDECK_IDENTITY and TASKDECK_SECRET are required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := session.NewStore()
	client := apiclient.New(cfg.API, store)
	manager := realtime.NewManager(cfg.Realtime, func(event string) {
		logger.Info("domain changed", slog.String("event", event))
	})
	defer manager.Close()

	// The credential store is the single wiring point: every login, refresh
	// and sign-out flows through it to the connection manager.
	store.Watch(manager.SetCredential)

	startMetricsServer(ctx, logger, manager)

	cred, err := client.Login(ctx, identity, secret)
	if err != nil {
		logger.Error("login failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("signed in",
		slog.String("principal", cred.Principal.Email),
		slog.String("role", cred.Principal.Role))

	go reportHeartbeats(ctx, logger, manager)

	<-ctx.Done()
	logger.Info("shutting down")
	client.Logout(context.Background())
}

// loadConfig reads the YAML file named by TASKDECK_CONFIG when set, and
// falls back to environment variables on top of the defaults.
func loadConfig() (config.Config, error) {
	if path := os.Getenv("TASKDECK_CONFIG"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// reportHeartbeats periodically logs the current channel condition.
func reportHeartbeats(ctx context.Context, logger *slog.Logger, manager *realtime.Manager) {
	interval := pkgconfig.GetEnvDuration("TASKDECK_REPORT_INTERVAL", 30*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			attrs := []any{slog.String("state", manager.State().String())}
			if sample, ok := manager.LastHeartbeat(); ok {
				attrs = append(attrs, slog.Duration("heartbeat_latency", sample.Latency))
			}
			logger.Info("channel status", attrs...)
		}
	}
}
