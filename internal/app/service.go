package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashsync/internal/alertstream"
	"dashsync/internal/clock"
	"dashsync/internal/config"
	"dashsync/internal/detect"
	"dashsync/internal/evaluate"
	"dashsync/internal/fetch"
	"dashsync/internal/httpapi"
	"dashsync/internal/logging"
	"dashsync/internal/notify"
	"dashsync/internal/state"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable sync service.
type Service struct {
	cfg      config.Config
	logger   *slog.Logger
	closeLog func()
	manager  *Manager
	mail     *notify.SMTPSender
	events   alertstream.Publisher
	httpSrv  *http.Server
	clock    clock.Clock
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		clock:    clk,
	}

	store, err := state.NewFileStore(cfg.Service.DataDir, logger)
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	events, err := buildEventPublisher(cfg.Events)
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.events = events

	mail := notify.NewSMTPSender(notify.SMTPConfig{
		Host:           cfg.Mail.Host,
		Port:           cfg.Mail.Port,
		Username:       cfg.Mail.Username,
		Password:       cfg.Mail.Password,
		From:           cfg.Mail.From,
		DialTimeoutSec: cfg.Mail.DialTimeoutSec,
	}, logger)
	service.mail = mail

	fetcher := fetch.New(time.Duration(cfg.Service.FetchTimeoutSec)*time.Second, logger)
	manager, err := NewManager(ManagerDeps{
		Store:     store,
		Fetcher:   fetcher,
		Detector:  detect.New(clk, logger),
		Evaluator: evaluate.New(logger),
		Events:    events,
		Clock:     clk,
		Logger:    logger,
		Tick:      time.Duration(cfg.Service.TickSec) * time.Second,
		Backoff:   time.Duration(cfg.Service.BackoffSec) * time.Second,
	})
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	manager.SetDispatcher(notify.NewDispatcher(manager, mail, logger))
	service.manager = manager

	service.buildHTTPServer()
	return service, nil
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	if s.mail.Enabled() {
		verifyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := s.mail.Verify(verifyCtx); err != nil {
			s.logger.Warn("mail server verification failed", "host", s.cfg.Mail.Host, "error", err.Error())
		} else {
			s.logger.Info("mail server verified", "host", s.cfg.Mail.Host)
		}
		cancel()
	} else {
		s.logger.Info("email dispatch disabled, notifications are in-app only")
	}

	errChan := make(chan error, 1)
	if s.httpSrv != nil {
		go func() {
			s.logger.Info("http server starting", "listen", s.cfg.API.Listen)
			err := s.httpSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	s.manager.StartScheduler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown failed", "error", err.Error())
			markErr(fmt.Errorf("http shutdown: %w", err))
		}
	}
	s.manager.StopScheduler()
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Error("event publisher close failed", "error", err.Error())
			markErr(fmt.Errorf("event publisher close: %w", err))
		}
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.events != nil {
		_ = s.events.Close()
		s.events = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires the operations API with health endpoint.
// Params: none.
// Returns: server stored on service, nil when the API is disabled.
func (s *Service) buildHTTPServer() {
	if !s.cfg.API.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.API.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	httpapi.NewHandler(s.manager, s.cfg.API.MaxBodyBytes).Register(mux)

	s.httpSrv = &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildEventPublisher creates the fired-alert stream publisher.
// Params: events config section.
// Returns: NATS publisher when enabled, no-op publisher otherwise.
func buildEventPublisher(cfg config.EventsConfig) (alertstream.Publisher, error) {
	if !cfg.Enabled {
		return alertstream.Noop{}, nil
	}
	return alertstream.NewNATSPublisher(alertstream.Config{
		URL:     cfg.URL,
		Stream:  cfg.Stream,
		Subject: cfg.Subject,
	})
}
