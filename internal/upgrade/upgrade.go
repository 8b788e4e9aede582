// Package upgrade transfers the node executable between peers. The file is
// streamed raw over a plain TCP connection: the server writes the whole file
// and closes, the client reads to EOF.
package upgrade

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultPort        = 9803
	DefaultDialTimeout = 10 * time.Second
	updateFileName     = ".ringrelay.update"
)

var (
	ErrEmptyBinary = errors.New("received empty binary")
	ErrNotServing  = errors.New("upgrade server not running")
)

type Options struct {
	// Port is the TCP port served on all interfaces. Zero picks a free port.
	Port int
	// ExePath is the executable replaced by UpgradeBinary. Defaults to the
	// running executable.
	ExePath     string
	DialTimeout time.Duration
	// Exit terminates the process after a successful swap. Defaults to
	// os.Exit.
	Exit   func(code int)
	Logger *zap.Logger
}

// Server serves and fetches executables. At most one listener is active.
type Server struct {
	opts Options
	log  *zap.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

func New(opts Options) *Server {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{opts: opts, log: opts.Logger.With(zap.String("component", "upgrade"))}
}

// Serve offers the file at path to every client until Stop. A running
// server is replaced.
func (s *Server) Serve(path string) error {
	return s.start(path, false)
}

// ServeOnce offers the file at path to a single client, then stops.
func (s *Server) ServeOnce(path string) error {
	return s.start(path, true)
}

func (s *Server) start(path string, once bool) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "serve %s", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Transfers started by the previous listener keep running.
	s.closeLocked()
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	s.ln = ln
	s.log.Info("serving binary", zap.String("path", path), zap.Stringer("addr", ln.Addr()), zap.Bool("once", once))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln, path, once)
	}()
	return nil
}

func (s *Server) acceptLoop(ln net.Listener, path string, once bool) {
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Warn("accept failed", zap.Error(err))
			}
			return
		}
		if once {
			s.serveConn(conn, path)
			s.release(ln)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn, path)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn, path string) {
	defer conn.Close()
	f, err := os.Open(path)
	if err != nil {
		s.log.Error("open binary", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()
	n, err := io.Copy(conn, f)
	if err != nil {
		s.log.Warn("serving binary failed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
		return
	}
	s.log.Info("binary served", zap.Stringer("remote", conn.RemoteAddr()), zap.Int64("bytes", n))
}

// release forgets ln if it is still the active listener.
func (s *Server) release(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == ln {
		s.ln = nil
	}
}

// Addr returns the active listener address.
func (s *Server) Addr() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil, ErrNotServing
	}
	return s.ln.Addr(), nil
}

// Stop closes the listener and waits for transfers in flight.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closeLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) closeLocked() {
	if s.ln == nil {
		return
	}
	s.ln.Close()
	s.ln = nil
	s.log.Info("stopped serving")
}

// UpgradeBinary downloads the executable served at addr next to the current
// one, renames it over the current one and exits. On failure the current
// executable is left untouched and the error is returned.
func (s *Server) UpgradeBinary(ctx context.Context, addr string) error {
	exe := s.opts.ExePath
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return errors.Wrap(err, "locate executable")
		}
	}
	tmp := filepath.Join(filepath.Dir(exe), updateFileName)
	if err := s.fetch(ctx, addr, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, exe); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "replace %s", exe)
	}
	s.log.Info("executable replaced, exiting to apply update", zap.String("path", exe))
	s.opts.Exit(0)
	return nil
}

func (s *Server) fetch(ctx context.Context, addr, dst string) error {
	d := net.Dialer{Timeout: s.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", addr)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return errors.Wrapf(err, "create %s", dst)
	}
	n, err := io.Copy(f, conn)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "download from %s", addr)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "write %s", dst)
	}
	if n == 0 {
		return errors.Wrapf(ErrEmptyBinary, "download from %s", addr)
	}
	return nil
}
