package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/overseerhq/overseer/internal/config"
	"github.com/overseerhq/overseer/internal/delegation"
	"github.com/overseerhq/overseer/internal/downstream"
	"github.com/overseerhq/overseer/internal/server"
	"github.com/overseerhq/overseer/internal/service"
)

const banner = `
  _____ _____ ___  ___ ___ ___ ___ ___
 |  _  |  |  | __|| _ \ __| __| __| _ \
 |     |  |  | _| |   /\__ \ _|| _||   /
 |_____|\___/|___||_|_\|___/___|___|_|_\
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Overseer control plane server",
		Long:  "Start the HTTP server that authenticates operators and proxies privileged actions to the downstream backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	// Set up logger
	logLevel := slog.LevelInfo
	if dev || viper.GetString("logging.level") == "debug" {
		logLevel = slog.LevelDebug
	}
	var logger *slog.Logger
	if viper.GetString("logging.format") == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("init operator store: %w", err)
	}
	defer store.Close()
	logger.Info("operator store initialized", "path", resolveDataDir())

	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		if dev {
			jwtSecret = "overseer-dev-secret-change-me"
			logger.Warn("auth.jwt_secret not set, using the development secret")
		} else {
			return fmt.Errorf("auth.jwt_secret is required (set OVERSEER_AUTH_JWT_SECRET or auth.jwt_secret in overseer.yaml)")
		}
	}
	tokenTTL := parseDuration(viper.GetString("auth.token_ttl"), service.DefaultTokenTTL)

	delegations := delegation.NewStore()
	authSvc := service.NewAuthService(store, delegations, jwtSecret, tokenTTL)

	// Seed the bootstrap super_admin on first boot.
	bootstrapEmail := viper.GetString("bootstrap.email")
	bootstrapPassword := viper.GetString("bootstrap.password")
	if err := authSvc.EnsureDefaultOperator(context.Background(), bootstrapEmail, bootstrapPassword); err != nil {
		return fmt.Errorf("bootstrap operator: %w", err)
	}
	if bootstrapEmail == "" {
		logger.Info("bootstrap.email not set - create operators with: overseer operator create")
	}

	downstreamURL := viper.GetString("downstream.base_url")
	if downstreamURL == "" {
		downstreamURL = "http://localhost:5000/api"
	}
	downstreamTimeout := parseDuration(viper.GetString("downstream.timeout"), downstream.DefaultTimeout)
	client := downstream.NewClient(downstreamURL, downstreamTimeout, delegations, logger)

	audit := service.NewAuditRecorder(store, logger)

	srvCfg := server.Config{
		Host:            host,
		Port:            port,
		ShutdownTimeout: parseDuration(viper.GetString("server.shutdown_timeout"), 30*time.Second),
		CORSOrigins:     corsOrigins(),
		LoginRateLimit:  10,
	}

	srv := server.New(srvCfg, store, authSvc, client, audit, logger)

	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ Downstream:  %s\n", downstreamURL)
	fmt.Printf("→ Health:      http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}

func corsOrigins() []string {
	if origins := viper.GetStringSlice("server.cors.origins"); len(origins) > 0 {
		return origins
	}
	return config.DefaultYAMLConfig().Server.CORS.Origins
}
