package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"mcpgateway/internal/config"
	"mcpgateway/internal/loader"
	"mcpgateway/pkg/logging"
)

// runGateway starts the services, blocks until ctx ends or a termination
// signal arrives, then shuts down in reverse start order.
func runGateway(ctx context.Context, gc *config.GatewayConfig, s *Services) error {
	if err := s.Manager.Start(ctx); err != nil {
		logging.Error("Gateway", err, "Failed to start aggregator")
		return errors.Join(err, s.Store.Close())
	}

	results, err := s.Loader.LoadAll(ctx)
	if err != nil {
		logging.Warn("Gateway", "Failed to load server definitions: %v", err)
	}
	logLoadResults(results)

	if err := s.Loader.Watch(ctx); err != nil {
		logging.Warn("Gateway", "Not watching %s: %v", gc.ServersDir, err)
	}

	if err := s.Server.Start(); err != nil {
		logging.Error("Gateway", err, "Failed to start HTTP server")
		return errors.Join(err, shutdown(gc, s))
	}

	notifySystemd(daemon.SdNotifyReady)
	logging.Info("Gateway", "Gateway ready on %s. Press Ctrl+C to stop.", s.Server.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logging.Info("Gateway", "Received %s, shutting down", sig)
	case <-ctx.Done():
		logging.Info("Gateway", "Context cancelled, shutting down")
	}

	notifySystemd(daemon.SdNotifyStopping)
	return shutdown(gc, s)
}

// shutdown stops accepting requests first, then drains the aggregator and
// closes the store. The drain timeout bounds the whole sequence.
func shutdown(gc *config.GatewayConfig, s *Services) error {
	ctx, cancel := context.WithTimeout(context.Background(), gc.Timeouts.Drain)
	defer cancel()

	var errs []error
	if err := s.Loader.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.Manager.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.Store.Close(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		logging.Error("Gateway", err, "Shutdown finished with errors")
	} else {
		logging.Info("Gateway", "Shutdown complete")
	}
	return err
}

func logLoadResults(results []loader.Result) {
	var registered, skipped, failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			logging.Warn("Gateway", "Server definition %s: %v", r.Path, r.Err)
		case r.Skipped:
			skipped++
		default:
			registered++
		}
	}
	if len(results) > 0 {
		logging.Info("Gateway", "Server definitions: %d registered, %d already present, %d failed", registered, skipped, failed)
	}
}

// notifySystemd is a no-op outside systemd (NOTIFY_SOCKET unset).
func notifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("Gateway", "sd_notify %q failed: %v", state, err)
		return
	}
	if sent {
		logging.Debug("Gateway", "sd_notify %s", state)
	}
}
