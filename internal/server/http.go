package server

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	ratelimitmw "github.com/JGLTechnologies/gin-rate-limit"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
	"github.com/speakeasy-rtc/speakeasy/internal/ratelimit"
)

// OpsDependencies bundles what the ops HTTP surface needs beyond cfg:
// the rate-limit store backing the setup wizard and the setup-wizard
// handler set itself. Prometheus metrics are served on their own
// listener by metrics.CreateMetricsServer, not this router.
type OpsDependencies struct {
	RateLimit *ratelimit.Store
	Setup     *SetupWizard
}

// NewOpsRouter builds the gin engine serving /healthz and the one-time
// setup wizard (§6); pprof runs on its own listener. Grounded on the
// teacher's CreateRouter/addMiddleware shape, generalized from DMRHub's
// frontend-serving router to an ops-only surface: Speakeasy has no
// bundled web frontend, so there is no addFrontendRoutes analog.
func NewOpsRouter(cfg *config.Config, deps OpsDependencies) *gin.Engine {
	if cfg.Logging.Level == config.LogLevelDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	if cfg.Metrics.OTLPEndpoint != "" {
		r.Use(otelgin.Middleware("speakeasy-ops"))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowCredentials = true
	corsConfig.AllowOrigins = cfg.Network.CORSHosts
	r.Use(cors.New(corsConfig))

	// A cookie store stands in for the teacher's Redis-backed session
	// store: the setup wizard's session only needs to survive the
	// handful of requests one operator makes while completing it, so a
	// signed cookie avoids requiring Redis purely for this flow.
	sessionSecret := make([]byte, 32)
	_, _ = rand.Read(sessionSecret)
	r.Use(sessions.Sessions("speakeasy_setup", cookie.NewStore(sessionSecret)))

	r.GET("/healthz", healthzHandler)

	if deps.Setup != nil {
		setupGroup := r.Group("/setup")
		if deps.RateLimit != nil {
			setupGroup.Use(setupRateLimitMiddleware(deps.RateLimit))
		}
		deps.Setup.ApplyRoutes(setupGroup)
	}

	return r
}

func healthzHandler(c *gin.Context) {
	c.Status(http.StatusOK)
}

// setupRateLimitMiddleware wraps store in JGLTechnologies/gin-rate-limit,
// matching the teacher's own internal/http/ratelimit usage shape.
func setupRateLimitMiddleware(store *ratelimit.Store) gin.HandlerFunc {
	return ratelimitmw.RateLimiter(store, &ratelimitmw.Options{
		ErrorHandler: func(c *gin.Context, info ratelimitmw.Info) {
			c.String(http.StatusTooManyRequests, "too many requests, try again in "+time.Until(info.ResetTime).String())
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}

// serveOpsHTTP runs the ops HTTP server until ctx is canceled, then
// drains in-flight requests for up to shutdownTimeout before returning.
func (s *Server) serveOpsHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Network.APIPort),
		Handler:      s.opsHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
