package agentdeck

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/agentdeck/core"
	"pkt.systems/agentdeck/httpapi"
	"pkt.systems/agentdeck/internal/appconfig"
	"pkt.systems/agentdeck/internal/auth"
	"pkt.systems/agentdeck/provider"
	"pkt.systems/agentdeck/provider/codex"
	"pkt.systems/agentdeck/provider/opencode"
	"pkt.systems/agentdeck/schema"
	"pkt.systems/pslog"
)

// Server composes the provider adapters, the unified core service, and
// the HTTP API into one runnable unit.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerDeps captures optional dependencies for the compositor. A nil
// Logger falls back to the context logger; a nil EventSink means events
// flow only to the SSE hub.
type ServerDeps struct {
	Logger    pslog.Logger
	EventSink core.EventSink
}

// New builds the agentdeck server from a validated configuration.
// Disabled providers are still registered so the availability matrix
// can report them as providerDisabled instead of unknown.
func New(cfg appconfig.Config, deps ServerDeps) (Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	hub := httpapi.NewHub(cfg.HTTP.EventHistorySize)
	relay := &provider.Relay{}

	transport := codex.NewSocketTransport(cfg.Providers.Codex.Socket, logger)
	codexAdapter := codex.New(transport, cfg.Providers.Codex.Enabled, relay, logger)

	client := opencode.NewHTTPClient(cfg.Providers.Opencode.BaseURL,
		time.Duration(cfg.Providers.Opencode.TimeoutSeconds)*time.Second)
	opencodeAdapter := opencode.New(client, cfg.Providers.Opencode.Enabled, relay, logger)

	registry := core.NewRegistry()
	if err := registry.Register(codexAdapter); err != nil {
		return nil, err
	}
	if err := registry.Register(opencodeAdapter); err != nil {
		return nil, err
	}

	sink := core.EventSink(hub)
	if deps.EventSink != nil {
		sink = eventFanout{sinks: []core.EventSink{hub, deps.EventSink}}
	}
	service, err := core.NewService(registry, core.ServiceDeps{
		EventSink:       sink,
		Logger:          logger,
		RefreshDelay:    time.Duration(cfg.Service.RefreshDelayMS) * time.Millisecond,
		HistoryCapacity: cfg.Service.HistoryCapacity,
		TraceDir:        cfg.Service.TraceDir,
	})
	if err != nil {
		return nil, err
	}
	relay.Bind(service)

	var authenticator httpapi.Authenticator
	if cfg.Auth.UserFile != "" {
		store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, cfg.Auth.SeedUsers, logger)
		if err != nil {
			return nil, err
		}
		authenticator = store
	}

	httpCfg := httpapi.Config{
		Addr:             cfg.HTTP.Addr,
		SessionCookie:    cfg.HTTP.SessionCookie,
		SessionTTLHours:  cfg.HTTP.SessionTTLHours,
		BaseURL:          cfg.HTTP.BaseURL,
		BasePath:         cfg.HTTP.BasePath,
		EventHistorySize: cfg.HTTP.EventHistorySize,
		KeepaliveSeconds: cfg.HTTP.KeepaliveSeconds,
	}
	httpSrv := httpapi.NewServer(httpCfg, service, authenticator, hub)

	return &compositeServer{
		cfg:       cfg,
		logger:    logger,
		service:   service,
		transport: transport,
		codex:     codexAdapter,
		opencode:  opencodeAdapter,
		httpSrv:   httpSrv,
	}, nil
}

type compositeServer struct {
	cfg       appconfig.Config
	logger    pslog.Logger
	service   core.Service
	transport *codex.SocketTransport
	codex     *codex.Adapter
	opencode  *opencode.Adapter
	httpSrv   *httpapi.Server

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		s.logger.Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.started = true
	s.mu.Unlock()

	log := s.logger
	log.Info("server start",
		"http_addr", s.cfg.HTTP.Addr,
		"codex", s.cfg.Providers.Codex.Enabled,
		"opencode", s.cfg.Providers.Opencode.Enabled,
	)

	if s.cfg.Providers.Codex.Enabled {
		go s.transport.Run(s.ctx, func() {
			s.service.StateChanged(schema.ProviderCodex)
		})
		go s.codex.Run(s.ctx)
	}
	if s.cfg.Providers.Opencode.Enabled {
		go s.opencode.Run(s.ctx)
	}
	go func() {
		if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
			log.Error("http server failed", "err", err)
			s.errCh <- err
		}
	}()
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			s.logger.Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	log := s.logger
	log.Info("server stop requested")
	if err := s.service.Close(); err != nil {
		log.Warn("server service close failed", "err", err)
	}
	if err := s.transport.Close(); err != nil {
		log.Warn("server transport close failed", "err", err)
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
