// File: internal/bus/bus.go
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/eventloop"
)

var (
	// ErrNoReceiver is returned when a tab has no registered listener.
	ErrNoReceiver = errors.New("could not establish connection: receiving end does not exist")
	// ErrNoResponse is returned when every listener declined, or a listener
	// that promised a deferred response went away before sending it.
	ErrNoResponse = errors.New("message port closed before a response was received")
)

// Disposition is what a listener tells the bus after seeing a message.
type Disposition int

const (
	// NotHandled passes the message on to the next listener.
	NotHandled Disposition = iota
	// Responded means respond was called before the listener returned.
	Responded
	// Pending keeps the channel open; respond will be called later.
	Pending
)

func (d Disposition) String() string {
	switch d {
	case NotHandled:
		return "not_handled"
	case Responded:
		return "responded"
	case Pending:
		return "pending"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Sender identifies where a message came from.
type Sender struct {
	// TabID is set when the sender runs inside a tab, zero otherwise.
	TabID   int
	Context string
}

// Respond delivers a reply. Only the first call for a message has any effect.
type Respond func(schemas.Response)

// Listener handles a message on its own loop. The ctx it receives lives as long
// as that loop, so listeners returning Pending may hand it to goroutines.
type Listener func(ctx context.Context, req schemas.Request, sender Sender, respond Respond) Disposition

type registration struct {
	id   uint64
	loop *eventloop.Loop
	fn   Listener
}

// Bus routes request/response messages between contexts. Every message is
// serialized once and decoded afresh for each listener, and replies cross back
// the same way, so no memory is shared between sender and receiver.
type Bus struct {
	logger *zap.Logger

	mu      sync.RWMutex
	nextID  uint64
	runtime []*registration
	tabs    map[int][]*registration
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger.Named("bus"),
		tabs:   make(map[int][]*registration),
	}
}

// Listen registers a runtime listener, run on loop. The returned function
// removes it.
func (b *Bus) Listen(loop *eventloop.Loop, fn Listener) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	reg := &registration{id: b.nextID, loop: loop, fn: fn}
	b.runtime = append(b.runtime, reg)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.runtime = without(b.runtime, reg.id)
	}
}

// ListenTab registers a listener addressed by tab id.
func (b *Bus) ListenTab(tabID int, loop *eventloop.Loop, fn Listener) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	reg := &registration{id: b.nextID, loop: loop, fn: fn}
	b.tabs[tabID] = append(b.tabs[tabID], reg)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		remaining := without(b.tabs[tabID], reg.id)
		if len(remaining) == 0 {
			delete(b.tabs, tabID)
			return
		}
		b.tabs[tabID] = remaining
	}
}

// DropTab removes every listener addressed by tabID.
func (b *Bus) DropTab(tabID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tabs, tabID)
}

func without(regs []*registration, id uint64) []*registration {
	out := make([]*registration, 0, len(regs))
	for _, r := range regs {
		if r.id != id {
			out = append(out, r)
		}
	}
	return out
}

// SendMessage delivers req to the runtime listeners.
func (b *Bus) SendMessage(ctx context.Context, sender Sender, req schemas.Request) (schemas.Response, error) {
	b.mu.RLock()
	regs := append([]*registration(nil), b.runtime...)
	b.mu.RUnlock()
	return b.dispatch(ctx, regs, sender, req)
}

// SendTabMessage delivers req to the listeners of one tab.
func (b *Bus) SendTabMessage(ctx context.Context, tabID int, sender Sender, req schemas.Request) (schemas.Response, error) {
	b.mu.RLock()
	regs := append([]*registration(nil), b.tabs[tabID]...)
	b.mu.RUnlock()
	if len(regs) == 0 {
		return schemas.Response{}, fmt.Errorf("tab %d: %w", tabID, ErrNoReceiver)
	}
	return b.dispatch(ctx, regs, sender, req)
}

func (b *Bus) dispatch(ctx context.Context, regs []*registration, sender Sender, req schemas.Request) (schemas.Response, error) {
	msgID := uuid.New().String()
	log := b.logger.With(zap.String("message_id", msgID), zap.String("action", string(req.Action())))

	wire, err := schemas.EncodeRequest(req)
	if err != nil {
		return schemas.Response{}, err
	}
	if len(regs) == 0 {
		log.Debug("No listeners registered.")
		return schemas.Response{}, ErrNoResponse
	}

	reply := make(chan []byte, 1)
	var once sync.Once
	respond := func(r schemas.Response) {
		once.Do(func() {
			raw, err := schemas.EncodeResponse(r)
			if err != nil {
				raw, _ = schemas.EncodeResponse(schemas.Failure(err))
			}
			reply <- raw
		})
	}

	for _, reg := range regs {
		clone, err := schemas.DecodeRequest(wire)
		if err != nil {
			return schemas.Response{}, err
		}

		disp := NotHandled
		err = reg.loop.Do(ctx, func(taskCtx context.Context) {
			disp = reg.fn(taskCtx, clone, sender, respond)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return schemas.Response{}, ctxErr
			}
			log.Debug("Listener loop unavailable; skipping.", zap.String("loop", reg.loop.Name()), zap.Error(err))
			continue
		}

		select {
		case raw := <-reply:
			log.Debug("Response received.", zap.String("loop", reg.loop.Name()), zap.Stringer("disposition", disp))
			return schemas.DecodeResponse(raw)
		default:
		}

		switch disp {
		case Pending:
			return b.await(ctx, log, reg, reply)
		case Responded:
			log.Warn("Listener claimed a response but sent none.", zap.String("loop", reg.loop.Name()))
		}
	}

	log.Debug("No listener handled the message.")
	return schemas.Response{}, ErrNoResponse
}

// await waits for a deferred response from reg.
func (b *Bus) await(ctx context.Context, log *zap.Logger, reg *registration, reply <-chan []byte) (schemas.Response, error) {
	log.Debug("Awaiting deferred response.", zap.String("loop", reg.loop.Name()))
	select {
	case raw := <-reply:
		return schemas.DecodeResponse(raw)
	case <-reg.loop.Done():
		select {
		case raw := <-reply:
			return schemas.DecodeResponse(raw)
		default:
		}
		return schemas.Response{}, ErrNoResponse
	case <-ctx.Done():
		return schemas.Response{}, ctx.Err()
	}
}
