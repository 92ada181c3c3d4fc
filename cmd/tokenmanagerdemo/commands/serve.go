package commands

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/hatchtoken/tokenmanager"
	"github.com/hatchtoken/tokenmanager/internal/observability"
	"github.com/hatchtoken/tokenmanager/internal/requestid"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run a Manager and expose /healthz and /metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080"},
		},
		Action: runServe,
	}
}

// withRequestID tags every incoming request with a fresh UUID, echoed
// back as X-Request-Id and stashed in the request context so downstream
// handlers and log lines can correlate by it.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestid.New()
		w.Header().Set("X-Request-Id", id)
		r = r.WithContext(requestid.WithRequestID(r.Context(), id))
		next.ServeHTTP(w, r)
	})
}

// recordHostURL feeds every incoming request's URL to the Manager's
// SetHostURL, the server-side analogue of a single-page app updating
// window.location on navigation, so Get's PKCE-callback detection has
// something to look at.
func recordHostURL(manager *tokenmanager.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			manager.SetHostURL(r.URL.String())
			next.ServeHTTP(w, r)
		})
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, shutdownLogs, err := loadContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdownLogs(context.Background())

	registry := prometheus.NewRegistry()
	observability.MustRegister(registry)

	manager, err := tokenmanager.New(ctx, cfg, tokenmanager.WithLogger(logger))
	if err != nil {
		return err
	}
	defer manager.Close(context.Background())

	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(httplog.RequestLogger(logger, nil))
	r.Use(recordHostURL(manager))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cmd.String("addr"), Handler: r}
	logger.Info("serving", "addr", cmd.String("addr"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
