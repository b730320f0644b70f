// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	healthfeature "github.com/dalemusser/organizer/internal/app/features/health"
	inboundfeature "github.com/dalemusser/organizer/internal/app/features/inbound"
	leavefeature "github.com/dalemusser/organizer/internal/app/features/leave"
	"github.com/dalemusser/organizer/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler mounts the HTTP surface: the health probe, the inbound mail
// webhook and the unsubscribe links carried by notification emails.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc, err := currentServices()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	healthHandler := healthfeature.NewHandler(deps.MongoClient, svc.MailName, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Inbound parse webhook from the mail provider.
	var webhookMW []func(http.Handler) http.Handler
	if appCfg.InboundRateLimit > 0 {
		limiter := ratelimit.New(appCfg.InboundRateLimit, time.Minute)
		running.mu.Lock()
		running.limiter = limiter
		running.mu.Unlock()
		webhookMW = append(webhookMW, ratelimit.Middleware(limiter, logger))
	}
	inboundHandler := inboundfeature.NewHandler(svc.Replies, logger)
	r.Mount("/api", inboundfeature.Routes(inboundHandler, webhookMW...))

	leaveHandler := leavefeature.NewHandler(svc.Members, svc.Persons, svc.Contexts, logger)
	r.Mount("/leave", leavefeature.Routes(leaveHandler))

	return r, nil
}
