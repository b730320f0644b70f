// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"sync"

	"github.com/dalemusser/organizer/internal/app/system/ratelimit"
	"github.com/dalemusser/organizer/internal/app/system/timeouts"
	"github.com/dalemusser/organizer/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// running holds what Startup built so BuildHandler and Shutdown can use it.
var running struct {
	mu       sync.Mutex
	services *Services
	digest   *workers.DigestScheduler
	limiter  *ratelimit.Limiter
}

// Startup builds the engines and starts the digest scheduler when an
// interval is configured.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{Fanout: appCfg.FanoutTimeout})
	timeouts.Log(logger)

	svc := BuildServices(appCfg, deps, logger)

	running.mu.Lock()
	defer running.mu.Unlock()
	running.services = svc

	if appCfg.DigestInterval > 0 {
		running.digest = workers.NewDigestScheduler(svc.Digest, logger, appCfg.DigestInterval)
		running.digest.Start()
	} else {
		logger.Info("digest scheduler disabled; run cmd/digest externally")
	}
	return nil
}

func currentServices() (*Services, error) {
	running.mu.Lock()
	defer running.mu.Unlock()
	if running.services == nil {
		return nil, errors.New("bootstrap: services not built; Startup has not run")
	}
	return running.services, nil
}
