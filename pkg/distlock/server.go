package distlock

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	otelchimetric "github.com/riandyrn/otelchi/metric"
	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/kalbasit/distlock/pkg/prometheus"
)

const (
	tracerName = "github.com/kalbasit/distlock/pkg/distlock"

	routeMetrics = "/metrics"
	routeHealthz = "/healthz"
)

// newMetricsRouter serves the Prometheus registry of the cron command along
// with a liveness endpoint.
func newMetricsRouter(gatherer promclient.Gatherer) http.Handler {
	router := chi.NewRouter()

	mp := otel.GetMeterProvider()
	baseCfg := otelchimetric.NewBaseConfig(tracerName, otelchimetric.WithMeterProvider(mp))

	router.Use(middleware.Heartbeat(routeHealthz))
	router.Use(middleware.Recoverer)
	router.Use(
		otelchi.Middleware(tracerName, otelchi.WithChiRoutes(router)),
		otelchimetric.NewRequestDurationMillis(baseCfg),
		otelchimetric.NewRequestInFlight(baseCfg),
	)
	router.Use(requestLogger)

	router.Method(http.MethodGet, routeMetrics, prometheus.Handler(gatherer))

	return router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()

		log := zerolog.Ctx(r.Context()).With().
			Str("method", r.Method).
			Str("request-uri", r.RequestURI).
			Str("from", r.RemoteAddr).
			Logger()

		if sc := trace.SpanFromContext(r.Context()).SpanContext(); sc.HasTraceID() {
			log = log.With().Str("trace-id", sc.TraceID().String()).Logger()
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			// Scrapes are frequent; keep them out of the default log level.
			log.Debug().
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(startedAt)).
				Msg("handled request")
		}()

		next.ServeHTTP(ww, r.WithContext(log.WithContext(r.Context())))
	})
}
