// Package wiregate assembles the engine: listeners, the per-connection
// dispatcher, the composed handler, and the process lifecycle, behind a small
// builder.
package wiregate

import (
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wiregate-web/wiregate/config"
	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/internal/adapter/events"
	"github.com/wiregate-web/wiregate/internal/dispatch"
	"github.com/wiregate-web/wiregate/internal/tcp"
	"github.com/wiregate-web/wiregate/wire"
)

// ListenerFactory opens a listening socket. Custom factories plug in TLS or
// pre-bound sockets.
type ListenerFactory func(network, addr string) (net.Listener, error)

type listener struct {
	addr    string
	factory ListenerFactory
}

type hooks struct {
	OnStart, OnStop func()
}

// App collects everything needed to run the engine. Configure it with the
// chained methods, then call Serve or ServeEvents, which block until shutdown.
type App struct {
	addr      string
	cfg       config.Config
	log       *zap.Logger
	hooks     hooks
	listeners []listener
	lifecycle gateway.EventHandler
	errCh     chan error
}

func New(addr string) *App {
	return &App{
		addr:  addr,
		cfg:   config.Default(),
		log:   zap.Must(zap.NewProduction()),
		errCh: make(chan error),
	}
}

// Tune replaces the default config. Zero values are filled back in with
// defaults.
func (a *App) Tune(cfg config.Config) *App {
	a.cfg = config.Fill(cfg)
	return a
}

// WithLogger replaces the default production logger.
func (a *App) WithLogger(log *zap.Logger) *App {
	a.log = log
	return a
}

// Lifecycle installs the process-scoped lifecycle handler. Its startup
// acknowledgment gates accepting connections; a failure aborts Serve entirely.
func (a *App) Lifecycle(handler gateway.EventHandler) *App {
	a.lifecycle = handler
	return a
}

// NotifyOnStart calls the callback once all the listeners are up.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback after all the listeners are down and the
// remaining clients are disconnected.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Listen adds an extra listener besides the primary address.
func (a *App) Listen(addr string, optionalFactory ...ListenerFactory) *App {
	factory := ListenerFactory(net.Listen)
	if len(optionalFactory) > 0 && optionalFactory[0] != nil {
		factory = optionalFactory[0]
	}

	a.listeners = append(a.listeners, listener{addr: addr, factory: factory})

	return a
}

// TLS adds a listener with a custom TLS-capable factory.
func (a *App) TLS(addr string, factory ListenerFactory) *App {
	return a.Listen(addr, factory)
}

// HTTPS adds a TLS listener backed by the given certificate pair.
func (a *App) HTTPS(addr, cert, key string) *App {
	return a.TLS(addr, tlsListener(cert, key))
}

// AutoHTTPS adds a TLS listener with automatically managed certificates, or a
// self-signed one when serving localhost.
func (a *App) AutoHTTPS(addr string, domains ...string) *App {
	if isLocalhost(addr) {
		cert, key, err := selfSignedCert()
		if err != nil {
			a.log.Warn("cannot generate a self-signed certificate, TLS disabled",
				zap.Error(err))
			return a
		}

		return a.HTTPS(addr, cert, key)
	}

	return a.TLS(addr, autoTLSListener(domains...))
}

// Serve runs the engine in the synchronous protocol. Blocks until Stop,
// GracefulStop, or a listener failure.
func (a *App) Serve(handler gateway.Handler) error {
	return a.serve(dispatch.NewUnary(a.cfg, handler, a.log))
}

// ServeEvents runs the engine in the event-streamed protocol, serving both
// plain exchanges and channel upgrades.
func (a *App) ServeEvents(handler gateway.EventHandler) error {
	return a.serve(dispatch.NewEvents(a.cfg, handler, a.log))
}

// GracefulStop stops accepting new connections but serves the old ones to
// completion. Non-blocking: the engine is still running when it returns.
func (a *App) GracefulStop() {
	a.errCh <- status.ErrGracefulShutdown
}

// Stop tears the whole engine down immediately. Non-blocking.
func (a *App) Stop() {
	a.errCh <- status.ErrShutdown
}

func (a *App) serve(d *dispatch.Dispatcher) error {
	var lifecycle *events.Lifecycle
	if a.lifecycle != nil {
		adapter := events.New(a.cfg, wire.NewSerializer(make([]byte, 0, 64), nil), a.log)
		lifecycle = adapter.NewLifecycle(a.lifecycle)

		if err := lifecycle.Start(); err != nil {
			a.log.Error("lifecycle startup failed, refusing to accept connections",
				zap.Error(err))
			return err
		}
	}

	a.Listen(a.addr)
	servers, err := a.bind(d)
	if err != nil {
		return err
	}

	err = a.run(servers)

	if lifecycle != nil {
		_ = lifecycle.Stop()
	}

	return err
}

func (a *App) bind(d *dispatch.Dispatcher) ([]*tcp.Server, error) {
	servers := make([]*tcp.Server, len(a.listeners))

	for i, l := range a.listeners {
		sock, err := l.factory("tcp", l.addr)
		if err != nil {
			return nil, err
		}

		servers[i] = tcp.NewServer(sock, d.OnConn)
	}

	return servers, nil
}

func (a *App) run(servers []*tcp.Server) error {
	var failSilently atomic.Bool
	wg := new(sync.WaitGroup)

	for _, server := range servers {
		wg.Add(1)
		go func(server *tcp.Server) {
			defer wg.Done()

			err := server.Start()

			if failSilently.Swap(true) {
				return
			}

			a.errCh <- err
		}(server)
	}

	callIfNotNil(a.hooks.OnStart)

	err := <-a.errCh
	if err == status.ErrGracefulShutdown {
		// stop listening, then wait until the connected clients finish their
		// exchanges before tearing the servers down
		failSilently.Store(true)
		tcp.PauseAll(servers)
		wg.Wait()
	}

	tcp.StopAll(servers)
	callIfNotNil(a.hooks.OnStop)

	return err
}

func isLocalhost(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}
