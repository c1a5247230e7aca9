// -- cmd/serve.go --
package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/actuator/browser"
	"github.com/xkilldash9x/operant/internal/agent"
	"github.com/xkilldash9x/operant/internal/eventbus"
	"github.com/xkilldash9x/operant/internal/modelclient"
	"github.com/xkilldash9x/operant/internal/observability"
	"github.com/xkilldash9x/operant/internal/server"
)

// newServeCmd creates the `serve` command, which runs the agent HTTP service.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent orchestration HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			// Flags override file and environment configuration.
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen, _ = cmd.Flags().GetString("listen")
			}
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless, _ = cmd.Flags().GetBool("headless")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			model, err := modelclient.NewGeminiClient(cfg.Model, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize model client: %w", err)
			}

			browserActuator, err := browser.New(ctx, cfg.Browser, logger)
			if err != nil {
				return fmt.Errorf("failed to launch browser: %w", err)
			}
			defer browserActuator.Close()

			bus := eventbus.NewBus(cfg.Events.QueueSize, cfg.Events.HeartbeatInterval, logger)
			orch := agent.NewOrchestrator(cfg.Agent, cfg.Model, model,
				map[schemas.SessionMode]schemas.Actuator{
					schemas.ModeBrowser: browserActuator,
				}, bus, logger)

			srv := server.New(cfg.Server, orch, bus, logger)
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info("Server stopped.", zap.String("addr", cfg.Server.Listen))
			return nil
		},
	}

	serveCmd.Flags().String("listen", "", "listen address (host:port)")
	serveCmd.Flags().Bool("headless", true, "run the managed browser headless")
	return serveCmd
}
