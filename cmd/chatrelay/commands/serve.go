package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/server"
)

var (
	servePort     int
	serveHostname string
	serveWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatrelay HTTP server",
	Long: `Start the HTTP API serving sessions, messages, exports, the prompt
catalog and the event stream.

Host and port default to HOST and PORT from the environment, then to
localhost:8000.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload prompt files when they change")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != 0 {
		a.config.Server.Port = servePort
	}
	if serveHostname != "" {
		a.config.Server.Host = serveHostname
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Addr = config.Addr(a.config)
	serverConfig.EnableCORS = config.CORSEnabled(a.config)

	srv := server.New(serverConfig, a.dispatcher, a.exporter, a.bus, a.status)

	logging.Info().Str("version", Version).Str("addr", serverConfig.Addr).Msg("starting chatrelay server")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if serveWatch || a.config.Prompts.Watch {
		g.Go(func() error {
			err := a.catalog.Watch(gctx, nil)
			if err != nil {
				// Serving continues without hot reload.
				logging.Warn().Err(err).Msg("prompt watcher stopped")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logging.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logging.Info().Msg("server stopped")
	return nil
}
