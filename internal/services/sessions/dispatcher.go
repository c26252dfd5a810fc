package sessions

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
)

// ErrStopped is returned for operations submitted after Stop
var ErrStopped = errors.New("session manager stopped")

// operation is one unit of work on the dispatcher goroutine
type operation struct {
	name string
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Do runs fn on the dispatcher and waits for it. Operations run one at a time,
// each to completion. Cancelling ctx stops the wait, not the operation: a
// switch abandoned mid-install would otherwise leave half-installed credentials.
func (m *Manager) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	op := operation{
		name: name,
		ctx:  context.WithoutCancel(ctx),
		fn:   fn,
		done: make(chan error, 1),
	}

	select {
	case m.ops <- op:
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-op.done:
		return err
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues fn without waiting for it
func (m *Manager) Submit(name string, fn func(ctx context.Context) error) {
	op := operation{
		name: name,
		ctx:  context.Background(),
		fn:   fn,
		done: make(chan error, 1),
	}
	select {
	case m.ops <- op:
	case <-m.stopped:
		m.logger.Debug().Str("operation", name).Msg("Manager stopped, operation dropped")
	}
}

func (m *Manager) runDispatcher() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopped:
			return
		case op := <-m.ops:
			op.done <- m.execute(op)
		}
	}
}

// execute runs one operation with a correlation-scoped logger and panic recovery
func (m *Manager) execute(op operation) (err error) {
	opID := common.NewOperationID()
	m.log = m.logger.WithCorrelationId(opID)
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			m.log.Error().
				Str("operation", op.name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Recovered from panic in operation")
			err = fmt.Errorf("operation %s panicked: %v", op.name, r)
		}
		m.log = m.logger
	}()

	m.log.Debug().Str("operation", op.name).Msg("Operation started")
	err = op.fn(op.ctx)
	if err != nil {
		m.log.Debug().Err(err).Str("operation", op.name).Msg("Operation finished with error")
	}
	return err
}

// opLogger is the logger of the running operation
func (m *Manager) opLogger() arbor.ILogger {
	if m.log == nil {
		return m.logger
	}
	return m.log
}
