package events

import (
	"time"

	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
)

// Lifecycle is the process-scoped pseudo-connection coordinating engine
// startup and shutdown with a lifecycle handler. Exactly one instance exists
// for the engine's lifetime.
type Lifecycle struct {
	adapter *Adapter

	inbound  chan gateway.Event
	outbound chan gateway.Event
	done     chan error
}

// NewLifecycle spawns the lifecycle handler. It stays parked on ReceiveEvent
// until Start delivers the begin event.
func (a *Adapter) NewLifecycle(handler gateway.EventHandler) *Lifecycle {
	l := &Lifecycle{
		adapter:  a,
		inbound:  make(chan gateway.Event, a.cfg.Events.QueueSize),
		outbound: make(chan gateway.Event, a.cfg.Events.QueueSize),
		done:     make(chan error, 1),
	}

	ctx := &gateway.Context{
		Kind:  gateway.KindLifecycle,
		Scope: map[string]any{},
	}
	ctx.BindEvents(l.receive, l.send)

	go func() {
		l.done <- a.callHandler(ctx, handler)
	}()

	return l
}

// Start delivers the begin event and blocks until the handler acknowledges
// readiness. A failure acknowledgment (or the handler returning without one)
// aborts engine startup: no connection may be accepted after a non-nil return.
func (l *Lifecycle) Start() error {
	l.inbound <- gateway.LifecycleBegin{}

	for {
		select {
		case ev := <-l.outbound:
			switch ev := ev.(type) {
			case gateway.LifecycleReady:
				return nil
			case gateway.LifecycleFailed:
				if ev.Err != nil {
					return ev.Err
				}

				return status.ErrLifecycleFailed
			}
		case err := <-l.done:
			if err == nil {
				err = status.ErrLifecycleFailed
			}

			return err
		}
	}
}

// Stop delivers the end event and waits for the stop acknowledgment, bounded
// by the configured grace period. A missed acknowledgment is logged and never
// blocks process exit.
func (l *Lifecycle) Stop() error {
	select {
	case l.inbound <- gateway.LifecycleEnd{}:
	default:
	}

	grace := time.NewTimer(l.adapter.cfg.Lifecycle.ShutdownGrace)
	defer grace.Stop()

	for {
		select {
		case ev := <-l.outbound:
			if _, stopped := ev.(gateway.LifecycleStopped); stopped {
				return nil
			}
		case <-l.done:
			return nil
		case <-grace.C:
			l.adapter.log.Warn("lifecycle handler missed the shutdown grace period")
			return nil
		}
	}
}

func (l *Lifecycle) receive() (gateway.Event, error) {
	return <-l.inbound, nil
}

func (l *Lifecycle) send(ev gateway.Event) error {
	switch ev.(type) {
	case gateway.LifecycleReady, gateway.LifecycleFailed, gateway.LifecycleStopped:
	default:
		return status.ErrProtocolViolation
	}

	l.outbound <- ev

	return nil
}
