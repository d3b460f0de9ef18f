package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
)

const pprofReadHeaderTimeout = 3 * time.Second

// createPProfServer serves net/http/pprof's debug endpoints on its own
// listener, bound separately from both the signaling port and the ops
// HTTP surface so it can be firewalled off in production. A no-op
// returning nil when disabled, grounded on the teacher's
// internal/pprof.CreatePProfServer — generalized to return its bind
// error instead of panicking, so the caller's errgroup can report it
// alongside every other task (§5 Concurrency model).
func createPProfServer(cfg *config.Config) error {
	if !cfg.PProf.Enabled {
		return nil
	}

	r := gin.New()
	r.Use(gin.Recovery())

	if cfg.Metrics.OTLPEndpoint != "" {
		r.Use(otelgin.Middleware("speakeasy-pprof"))
	}

	pprof.Register(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.PProf.Bind, cfg.PProf.Port),
		Handler:           r,
		ReadHeaderTimeout: pprofReadHeaderTimeout,
	}
	return srv.ListenAndServe()
}
