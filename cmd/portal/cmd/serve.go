package cmd

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

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/auth"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/db/bunx"
	portalmw "github.com/MarioNunes35/Portal-de-aplicativos/internal/middleware"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/repository"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/server"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/telemetry"
)

var (
	sessionTTL      time.Duration
	cleanupInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the portal HTTP server",
	Long: `Starts the HTTP server. SIGHUP reloads the configuration file; SIGINT and
SIGTERM shut the server down gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := rt.Log
		ctx := cmd.Context()

		db, err := rt.OpenDB(ctx, true)
		if err != nil {
			return err
		}
		defer bunx.Close(db)
		log.Info("connected to database", zap.String("dialect", db.Dialect().Name().String()))

		// Initialize repositories
		userRepo := repository.NewBunUserRepository(db)
		sessionRepo := repository.NewBunSessionRepository(db)

		metrics, err := telemetry.NewMetrics()
		if err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
		parties, err := auth.NewRelyingParties(log.Named("oidc"))
		if err != nil {
			return fmt.Errorf("create relying party cache: %w", err)
		}
		store := config.NewStore(rt.Config)
		sessions := auth.NewSessions(sessionRepo, sessionTTL)

		portal, err := server.NewPortal(server.Deps{
			Dependencies: portalmw.Dependencies{
				Store:    store,
				Resolver: access.NewResolver(log.Named("access")),
				Sessions: sessions,
				Log:      log,
			},
			Parties: parties,
			Users:   userRepo,
			Metrics: metrics,
		})
		if err != nil {
			return fmt.Errorf("create portal: %w", err)
		}

		// An invalid catalog is fatal at startup; after a reload it only fails requests.
		if _, err := portal.Catalog(); err != nil {
			return fmt.Errorf("build catalog: %w", err)
		}
		describeSnapshot(log, store.Get())

		cleanupCtx, cancelCleanup := context.WithCancel(ctx)
		defer cancelCleanup()
		go runSessionCleanup(cleanupCtx, log, sessions, cleanupInterval)

		srv := server.NewHTTPServer(rt.Config.Server.Addr, portal)

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			log.Info("starting server",
				zap.String("addr", rt.Config.Server.Addr),
				zap.String("url", rt.Config.Server.URL))
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// SIGHUP re-reads the config file and publishes a new snapshot
		reload := make(chan os.Signal, 1)
		signal.Notify(reload, syscall.SIGHUP)
		defer signal.Stop(shutdown)
		defer signal.Stop(reload)

		for {
			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server error: %w", err)

			case sig := <-reload:
				snap, err := store.Reload()
				if err != nil {
					log.Error("config reload failed, keeping current snapshot",
						zap.Stringer("signal", sig), zap.Error(err))
					continue
				}
				log.Info("config reloaded", zap.Stringer("signal", sig), zap.Uint64("version", snap.Version))
				if _, err := portal.Catalog(); err != nil {
					log.Error("reloaded catalog is invalid", zap.Error(err))
				}
				describeSnapshot(log, snap)

			case sig := <-shutdown:
				log.Info("shutting down gracefully", zap.Stringer("signal", sig))

				// Graceful shutdown with timeout
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					srv.Close()
					return fmt.Errorf("graceful shutdown failed: %w", err)
				}

				log.Info("server stopped")
				return nil
			}
		}
	},
}

// describeSnapshot logs the parts of a snapshot operators usually ask about.
func describeSnapshot(log *zap.Logger, snap *config.Snapshot) {
	if problems, err := config.ValidateTree(snap.Settings); err != nil {
		log.Warn("schema validation unavailable", zap.Error(err))
	} else {
		for _, p := range problems {
			log.Warn("config schema violation", zap.String("problem", p))
		}
	}

	res := access.ResolveProvider(snap.Auth)
	log.Info("oidc provider resolution",
		zap.Uint64("version", snap.Version),
		zap.String("provider", res.Provider),
		zap.Bool("found", res.Found),
		zap.Strings("problems", res.Problems))

	if snap.Auth == nil {
		return
	}
	if access.AllowlistFrom(snap.Auth).Empty() {
		policy := snap.Auth.EmptyAllowlist
		if policy == "" {
			policy = config.EmptyAllowlistAllow
		}
		log.Info("allowlist is empty", zap.String("policy", policy))
	}
	if snap.Auth.Local.Enabled && snap.Auth.Local.AllowDefaultAdmin {
		log.Warn("built-in admin account is enabled until a local user exists")
	}
}

func runSessionCleanup(ctx context.Context, log *zap.Logger, sessions *auth.Sessions, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := sessions.Cleanup(ctx)
			if err != nil {
				log.Error("session cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("removed expired sessions", zap.Int64("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

func init() {
	serveCmd.Flags().DurationVar(&sessionTTL, "session-ttl", auth.SessionDuration, "Lifetime of a browser session")
	serveCmd.Flags().DurationVar(&cleanupInterval, "session-cleanup-interval", time.Hour, "How often expired sessions are deleted (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
