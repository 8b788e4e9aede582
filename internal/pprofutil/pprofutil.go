// Package pprofutil runs the optional debug HTTP server: prometheus metrics
// and, when enabled, the pprof handlers.
package pprofutil

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Options struct {
	Addr string
	// Pprof mounts /debug/pprof/.
	Pprof bool
	// AllowPublic permits binding a non-loopback address.
	AllowPublic bool
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

// Server is a started debug server.
type Server struct {
	ln  net.Listener
	srv *http.Server
	log *zap.Logger
}

// Listen binds the debug server. It refuses non-loopback addresses unless
// AllowPublic is set.
func Listen(opts Options) (*Server, error) {
	if !opts.AllowPublic && !isLoopbackBind(opts.Addr) {
		return nil, errors.Errorf("debug address must be loopback unless allow_public is set: %s", opts.Addr)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "debug listen %s", opts.Addr)
	}
	return &Server{
		ln: ln,
		srv: &http.Server{
			Handler:           newMux(opts),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: opts.Logger.With(zap.String("component", "debug")),
	}, nil
}

func newMux(opts Options) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	if opts.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("debug server listening", zap.String("addr", s.Addr()))
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()
	select {
	case err := <-errc:
		return errors.Wrap(err, "debug server")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "debug server shutdown")
	}
	<-errc
	return nil
}

func isLoopbackBind(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
