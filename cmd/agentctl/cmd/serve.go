package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btclog/v2"
	"github.com/spf13/cobra"

	"github.com/roasbeef/agentruntime/internal/agentruntime"
	"github.com/roasbeef/agentruntime/internal/build"
	"github.com/roasbeef/agentruntime/internal/demo"
	"github.com/roasbeef/agentruntime/internal/gateway"
	"github.com/roasbeef/agentruntime/internal/logging"
	"github.com/roasbeef/agentruntime/internal/tracesink"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start a runtime and expose it over the WebSocket gateway",
	RunE:  runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	backend := buildConsoleHandler()
	if logDirFlag != "" {
		fileWriter := build.NewRotatingLogWriter()
		cfg := build.DefaultLogRotatorConfig()
		cfg.LogDir = logDirFlag
		if err := fileWriter.InitLogRotator(cfg); err != nil {
			return err
		}
		defer fileWriter.Close()

		backend = build.NewHandlerSet(backend, buildFileHandler(fileWriter))
	}

	logger := logging.NewLogger(btclog.NewSLogger(backend, "AGCT"))

	rt := agentruntime.NewRuntime(agentruntime.WithLogger(logger))

	counterID, _ := agentruntime.MakeAgentRuntimeID("demo-counter")
	_, err := agentruntime.Create(rt, counterID, demo.CounterState{},
		agentruntime.WithWorkflow[demo.CounterState](demo.CounterWorkflow),
	)
	if err != nil {
		return err
	}

	logID, _ := agentruntime.MakeAgentRuntimeID("demo-log")
	_, err = agentruntime.Create(rt, logID, demo.LogState{},
		agentruntime.WithWorkflow[demo.LogState](demo.LogWorkflow),
	)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if dbPathFlag != "" {
		sink, err := tracesink.Open(dbPathFlag, logger)
		if err != nil {
			return err
		}
		defer sink.Close()

		if sub, err := rt.Subscribe(counterID); err == nil {
			sink.Attach(ctx, sub)
		}
	}

	hub := gateway.NewHub(rt, logger)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)

	srv := &http.Server{Addr: addrFlag, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoS(ctx, "gateway listening", "addr", addrFlag)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		return rt.Shutdown(shutdownCtx, defaultShutdownTimeout)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
