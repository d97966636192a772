package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pankajredekar/catalog/internal/auth"
	"github.com/pankajredekar/catalog/internal/config"
	"github.com/pankajredekar/catalog/internal/store"
	"github.com/pankajredekar/catalog/internal/utils"
	"github.com/pankajredekar/catalog/internal/web"
)

var (
	serveConfigPath string
	serveKeepData   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog web server",
	Long:  "Loads the configuration, prepares the database and serves HTTP until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		if !utils.FileExists(serveConfigPath) {
			utils.PrintError("%s not found. Run 'catalog init' first", serveConfigPath)
			os.Exit(1)
		}

		cfg, err := config.LoadConfig(serveConfigPath)
		if err != nil {
			utils.PrintError("Failed to load config: %v", err)
			os.Exit(1)
		}
		if err := cfg.Validate(); err != nil {
			utils.PrintError("Invalid config: %v", err)
			os.Exit(1)
		}

		logger, err := zap.NewProduction()
		if err != nil {
			utils.PrintError("Failed to build logger: %v", err)
			os.Exit(1)
		}
		defer func() { _ = logger.Sync() }()

		st, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			utils.PrintError("Failed to open database: %v", err)
			os.Exit(1)
		}

		if !serveKeepData {
			categories := cfg.SeedCategories()
			items, err := cfg.SeedItems()
			if err != nil {
				utils.PrintError("Invalid demo seed: %v", err)
				os.Exit(1)
			}
			if err := st.Reset(categories, items); err != nil {
				utils.PrintError("Failed to seed database: %v", err)
				os.Exit(1)
			}
			utils.PrintInfo("Seeded %d categories and %d items", len(categories), len(items))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var authenticator web.Authenticator
		if cfg.OAuth.ClientID != "" {
			provider, err := auth.Discover(ctx, cfg.OAuth.DiscoveryURL,
				cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.CallbackURL(), cfg.OAuth.Scopes)
			if err != nil {
				utils.PrintError("Failed to discover identity provider: %v", err)
				os.Exit(1)
			}
			authenticator = provider
		} else {
			utils.PrintWarning("No oauth client_id configured; login is disabled")
		}

		secureCookies := strings.HasPrefix(cfg.PublicURL, "https://")
		server, err := web.New(st, authenticator, cfg.SecretKey, cfg.SessionExpiry(), secureCookies, logger)
		if err != nil {
			utils.PrintError("Failed to build server: %v", err)
			os.Exit(1)
		}

		httpServer := &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: server.Handler(cfg.OAuth.CallbackPath),
		}

		utils.PrintSuccess("Serving on %s", cfg.ListenAddr)
		logger.Info("server starting", zap.String("addr", cfg.ListenAddr))

		errCh := make(chan error, 1)
		go func() {
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				utils.PrintError("Server failed: %v", err)
				os.Exit(1)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown failed", zap.Error(err))
			}
			logger.Info("server stopped")
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "catalog.yml", "path to the configuration file")
	serveCmd.Flags().BoolVar(&serveKeepData, "keep-data", false, "skip the demo reset and keep existing data")
	rootCmd.AddCommand(serveCmd)
}
