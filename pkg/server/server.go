// Package server assembles the authentication service from configuration and
// runs its listeners until the context is cancelled.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	ldapadapter "github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/adapter/ldap"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/api"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/kerberos"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/passthrough"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/password"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server already started")

const adminShutdownTimeout = 5 * time.Second

// Server owns every long-lived component: directory, password schemes,
// mechanisms, pass-through policy, Kerberos credentials, listeners and the
// admin API.
type Server struct {
	cfg        *config.Config
	configPath string

	directory   *directory.MemoryDirectory
	registry    *password.Registry
	local       *password.LocalPolicy
	validator   auth.PasswordValidator
	passThrough *passthrough.Policy
	dispatcher  *auth.Dispatcher
	kerberos    *kerberos.Provider
	keytabs     *kerberos.KeytabManager
	tlsConfig   *tls.Config

	listeners []*ldapadapter.Adapter
	admin     *api.Server

	serveOnce sync.Once
	closeOnce sync.Once
}

// Option customizes a Server.
type Option func(*Server)

// WithConfigPath enables hot reload of path while serving.
func WithConfigPath(path string) Option {
	return func(s *Server) { s.configPath = path }
}

// WithDirectory serves binds from dir instead of a fresh in-memory
// directory. Entries from directory.entries_file are still loaded into it.
func WithDirectory(dir *directory.MemoryDirectory) Option {
	return func(s *Server) { s.directory = dir }
}

// New builds every component cfg describes. cfg must have defaults applied
// and be validated. Nothing listens until Serve.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil configuration", auth.ErrConfiguration)
	}

	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	steps := []func() error{
		s.buildDirectory,
		s.buildPasswords,
		s.buildMechanisms,
		s.buildListeners,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	s.buildAdmin()

	return s, nil
}

// Directory returns the directory binds are served from.
func (s *Server) Directory() *directory.MemoryDirectory { return s.directory }

// Dispatcher returns the SASL mechanism dispatcher.
func (s *Server) Dispatcher() *auth.Dispatcher { return s.dispatcher }

// PassThrough returns the pass-through policy, or nil when disabled.
func (s *Server) PassThrough() *passthrough.Policy { return s.passThrough }

// Listeners returns the LDAP and LDAPS listeners, LDAP first.
func (s *Server) Listeners() []*ldapadapter.Adapter { return s.listeners }

// Admin returns the admin API server, or nil when disabled.
func (s *Server) Admin() *api.Server { return s.admin }

// Serve runs the listeners, the admin API, keytab polling and configuration
// reload until ctx is cancelled or a listener fails, then shuts everything
// down. It can be called once.
func (s *Server) Serve(ctx context.Context) error {
	err := ErrAlreadyServed
	s.serveOnce.Do(func() {
		err = s.serve(ctx)
	})
	return err
}

func (s *Server) serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	if s.keytabs != nil {
		if err := s.keytabs.Start(); err != nil {
			return fmt.Errorf("keytab refresh: %w", err)
		}
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(s.listeners)+2)
	var wg sync.WaitGroup

	for _, l := range s.listeners {
		wg.Add(1)
		go func(l *ldapadapter.Adapter) {
			defer wg.Done()
			if err := l.Serve(serveCtx); err != nil {
				errCh <- fmt.Errorf("%s listener: %w", l.Protocol(), err)
			}
		}(l)
	}

	if s.admin != nil {
		go func() {
			if err := s.admin.Start(serveCtx); err != nil {
				errCh <- fmt.Errorf("admin API: %w", err)
			}
		}()
	}

	if s.configPath != "" {
		w := config.NewWatcher(s.configPath, s.cfg)
		w.OnReload(s.reload)
		go func() {
			if err := w.Run(serveCtx); err != nil {
				logger.Warn("Configuration hot reload disabled", logger.Err(err))
			}
		}()
	}

	logger.Info("Authentication server started",
		"listeners", len(s.listeners),
		"mechanisms", s.dispatcher.Mechanisms(),
		"passthrough", s.passThrough != nil)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", logger.Err(ctx.Err()))
	case serveErr = <-errCh:
		logger.Error("Server component failed, shutting down", logger.Err(serveErr))
	}

	return errors.Join(serveErr, s.shutdown(cancel, &wg, errCh))
}

// shutdown stops the listeners first so no bind starts against components
// that are being released.
func (s *Server) shutdown(cancel context.CancelFunc, wg *sync.WaitGroup, errCh chan error) error {
	start := time.Now()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout + time.Second):
		errs = append(errs, errors.New("listeners did not stop before the shutdown timeout"))
	}

drain:
	for {
		select {
		case err := <-errCh:
			errs = append(errs, err)
		default:
			break drain
		}
	}

	if s.admin != nil {
		ctx, stop := context.WithTimeout(context.Background(), adminShutdownTimeout)
		if err := s.admin.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin API: %w", err))
		}
		stop()
	}

	logger.Info("Authentication server stopped", logger.DurationMs(start))
	return errors.Join(errs...)
}

// Close releases mechanisms, pass-through connections and Kerberos
// credentials. Serve calls it on return; call it directly only for a server
// that was never served.
func (s *Server) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.keytabs != nil {
			s.keytabs.Stop()
		}
		if s.dispatcher != nil {
			if err := s.dispatcher.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.passThrough != nil {
			if err := s.passThrough.Close(); err != nil {
				errs = append(errs, fmt.Errorf("pass-through: %w", err))
			}
		}
		if s.kerberos != nil {
			if err := s.kerberos.Close(); err != nil {
				errs = append(errs, fmt.Errorf("kerberos: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
