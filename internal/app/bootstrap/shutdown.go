// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the digest scheduler, lets in-flight fan-outs finish, then
// disconnects MongoDB.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	running.mu.Lock()
	sched, svc, limiter := running.digest, running.services, running.limiter
	running.digest, running.services, running.limiter = nil, nil, nil
	running.mu.Unlock()

	if limiter != nil {
		limiter.Stop()
	}

	if sched != nil {
		sched.Stop()
	}
	if svc != nil {
		done := make(chan struct{})
		go func() {
			svc.Notifier.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			logger.Warn("shutdown: notification fan-out still running", zap.Error(ctx.Err()))
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
