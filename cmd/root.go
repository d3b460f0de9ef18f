// Package cmd wires Speakeasy's cobra entrypoint: load config, build every
// capability object the signaling core depends on, and run the listener
// set until a shutdown signal arrives.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/speakeasy-rtc/speakeasy/internal/broadcast"
	"github.com/speakeasy-rtc/speakeasy/internal/config"
	"github.com/speakeasy-rtc/speakeasy/internal/db"
	"github.com/speakeasy-rtc/speakeasy/internal/groupkey"
	"github.com/speakeasy-rtc/speakeasy/internal/kv"
	"github.com/speakeasy-rtc/speakeasy/internal/logging"
	"github.com/speakeasy-rtc/speakeasy/internal/metrics"
	"github.com/speakeasy-rtc/speakeasy/internal/permission"
	"github.com/speakeasy-rtc/speakeasy/internal/presence"
	"github.com/speakeasy-rtc/speakeasy/internal/pubsub"
	"github.com/speakeasy-rtc/speakeasy/internal/ratelimit"
	"github.com/speakeasy-rtc/speakeasy/internal/router"
	"github.com/speakeasy-rtc/speakeasy/internal/server"
	"github.com/speakeasy-rtc/speakeasy/internal/session"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling/handlers"
	"github.com/speakeasy-rtc/speakeasy/internal/voice"
)

// permissionCacheCapacity and permissionCacheTTL bound the permission
// resolver's decision cache (§4.3: decisions are cached per
// user+channel+perm and invalidated on membership/role change).
const (
	permissionCacheCapacity = 4096
	permissionCacheTTL      = 30 * time.Second

	rateLimitWindow = time.Minute
	rateLimitHits   = 20

	shutdownGrace = 10 * time.Second
)

func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "speakeasy",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:              runRoot,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	return cmd
}

func runRoot(cmd *cobra.Command, _ []string) error {
	fmt.Printf("Speakeasy - %s (%s)\n", cmd.Annotations["version"], cmd.Annotations["commit"])

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging)

	cleanup, err := setupTracing(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			slog.Error("failed to shut down tracer", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	store, err := db.Open(*cfg, cfg.Metrics.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	kvStore, err := kv.MakeKV(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to key-value store: %w", err)
	}

	pubsubClient, err := pubsub.MakePubSub(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to pubsub: %w", err)
	}

	m := metrics.NewMetrics()

	scheduler, err := setupScheduler()
	if err != nil {
		return err
	}

	srv, wizard := buildServer(cfg, store, kvStore, pubsubClient, m, scheduler)

	if wizard != nil && store.JustBootstrapped {
		openSetupWizard(cfg, store)
	}

	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		if err := scheduler.StopJobs(); err != nil {
			slog.Error("failed to stop scheduler jobs", "error", err)
		}
		if err := scheduler.Shutdown(); err != nil {
			slog.Error("failed to shut down scheduler", "error", err)
		}
	}()

	slog.Info("speakeasy starting", "tcp_port", cfg.Network.TCPPort, "udp_port", cfg.Network.UDPPort, "api_port", cfg.Network.APIPort)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// buildServer wires every capability object the signaling core needs and
// returns the assembled Server along with its setup wizard (nil when the
// bootstrap admin flow doesn't need surfacing).
func buildServer(cfg *config.Config, store *db.Store, kvStore kv.KV, pubsubClient pubsub.PubSub, m *metrics.Metrics, scheduler gocron.Scheduler) (*server.Server, *server.SetupWizard) {
	presenceMap := presence.New()
	rt := router.New()
	sessionStore := session.New(kvStore, session.DefaultTTL)
	keyMgr := groupkey.New(cfg.Crypto.GroupKeyAlgo)
	permResolver := permission.New(store.Permissions, permissionCacheCapacity, permissionCacheTTL)
	connRegistry := server.NewConnRegistry()

	// No plugin host is wired yet, so broadcast.Broadcaster's plugin
	// notifications are simply skipped (nil is documented as valid).
	broadcaster := broadcast.New(presenceMap, pubsubClient, m, connRegistry, nil)

	voiceEngine := voice.New(cfg.Network.UDPPort, rt, keyMgr, pubsubClient, broadcaster, cfg.Crypto.Mode, m)

	deps := &handlers.Dependencies{
		Users:          store.Users,
		Channels:       store.Channels,
		Bans:           store.Bans,
		Chat:           store.Chat,
		Audit:          store.Audit,
		GroupKeys:      store.GroupKeys,
		Files:          store.Files,
		ServerSettings: store.Server,
		Identities:     store.Identities,

		Presence:    presenceMap,
		Router:      rt,
		Permissions: permResolver,
		GroupKeyMgr: keyMgr,
		Sessions:    sessionStore,
		Broadcaster: broadcaster,
		Voice:       voiceEngine,

		VoiceUDPPort: cfg.Network.UDPPort,
		CryptoMode:   cfg.Crypto.Mode,
	}

	dispatcher := signaling.NewDispatcher(permResolver)
	handlers.RegisterAll(dispatcher, deps)

	rlStore := ratelimit.New(&ratelimit.Options{KV: kvStore, Rate: rateLimitWindow, Limit: rateLimitHits})
	wizard := server.NewSetupWizard(store.Users, cfg.Security)
	opsRouter := server.NewOpsRouter(cfg, server.OpsDependencies{RateLimit: rlStore, Setup: wizard})

	setupMaintenanceJobs(scheduler, store, sessionStore, rt, keyMgr)

	srv := server.New(server.Options{
		Config:     cfg,
		Dispatcher: dispatcher,
		Presence:   presenceMap,
		Registry:   connRegistry,
		Voice:      voiceEngine,
		OpsHandler: opsRouter,
		Metrics:    m,
	})

	return srv, wizard
}

// setupMaintenanceJobs schedules the periodic background sweeps the
// signaling core relies on rather than enforcing inline: expired session
// cleanup (§4.13), and lazily minting a current group key for any
// occupied channel that doesn't have one yet (e.g. one restored from a
// restart with no in-memory key state).
func setupMaintenanceJobs(scheduler gocron.Scheduler, store *db.Store, sessions *session.Store, rt *router.Router, keyMgr *groupkey.Manager) {
	const sweepInterval = 5 * time.Minute

	_, err := scheduler.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(func() {
			removed, err := sessions.SweepExpired(context.Background())
			if err != nil {
				slog.Error("session sweep failed", "error", err)
				return
			}
			if removed > 0 {
				slog.Debug("swept expired sessions", "removed", removed)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to schedule session sweep", "error", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(func() {
			channels, err := store.Channels.List()
			if err != nil {
				slog.Error("listing channels for key rotation sweep", "error", err)
				return
			}
			for _, ch := range channels {
				if len(rt.ChannelMembers(ch.ID)) == 0 {
					continue
				}
				if _, err := keyMgr.Current(ch.ID); err != nil {
					if _, err := keyMgr.Rotate(ch.ID); err != nil {
						slog.Error("rotating group key", "channel", ch.ID, "error", err)
					}
				}
			}
		}),
	)
	if err != nil {
		slog.Error("failed to schedule key rotation sweep", "error", err)
	}
}

// openSetupWizard logs the first-run setup URL and best-effort opens it
// in a browser, mirroring the teacher's waitForConfig browser-launch
// behavior without blocking startup on the operator completing it.
func openSetupWizard(cfg *config.Config, store *db.Store) {
	admin, err := store.Users.FindByName("admin")
	if err != nil {
		slog.Error("looking up bootstrap admin for setup wizard", "error", err)
		return
	}

	url := fmt.Sprintf("http://localhost:%d/setup/status/%s", cfg.Network.APIPort, admin.ID.String())
	slog.Warn("first run detected: complete setup by changing the default admin password", "url", url)

	if err := browser.OpenURL(url); err != nil {
		slog.Info("could not open browser automatically, open the URL manually", "url", url)
	}
}

func setupScheduler() (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return scheduler, nil
}

// setupTracing initializes OpenTelemetry tracing if configured. When
// tracing is not configured it returns a no-op cleanup function.
func setupTracing(cfg *config.Config) (func(context.Context) error, error) {
	if cfg.Metrics.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	return initTracer(cfg)
}

func initTracer(cfg *config.Config) (func(context.Context) error, error) {
	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(cfg.Metrics.OTLPEndpoint),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	resources, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", "speakeasy"),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resources: %w", err)
	}

	otel.SetTracerProvider(
		sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resources),
		),
	)
	return exporter.Shutdown, nil
}
