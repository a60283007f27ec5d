// Package connpeer adapts an NDJSON connection into a hub.Observer.
//
// An observer window connects, optionally introduces itself with a hello
// message, then exchanges commands and update-history notifications for as
// long as the connection stays open.
package connpeer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.klb.dev/clipmind/internal/hub"
	"go.klb.dev/clipmind/internal/message"
	"go.klb.dev/clipmind/internal/wire"
)

// helloWait bounds how long a new connection may take to send hello before
// it is registered with defaults.
var helloWait = 250 * time.Millisecond

var (
	ErrClosed     = errors.New("connpeer: connection closed")
	ErrBufferFull = errors.New("connpeer: send buffer full")
)

// Dispatcher executes observer commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, o hub.Observer, msg *message.Message) error
}

// Peer is one connected observer.
//
// By default a Peer is a plain observer: the hub cannot tell when the
// client has finished loading, so it gets each update plus the configured
// resends. A client that can say when it is ready sends hello with
// handshake set, then ready when it is done loading, and from then on gets
// exactly one copy of each update.
type Peer struct {
	id   string
	addr string
	conn *wire.Conn
	h    *hub.Hub
	d    Dispatcher

	sendCh    chan *message.Message
	done      chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	source      string
	visible     bool
	ready       chan struct{} // nil until the client asks for a handshake
	readyClosed bool
}

// New creates a Peer for conn. key may be nil to disable encryption.
func New(conn net.Conn, h *hub.Hub, d Dispatcher, key *[32]byte) *Peer {
	return &Peer{
		id:     uuid.NewString(),
		addr:   conn.RemoteAddr().String(),
		conn:   wire.New(conn, key),
		h:      h,
		d:      d,
		sendCh: make(chan *message.Message, 64),
		done:   make(chan struct{}),
	}
}

func (p *Peer) ID() string { return p.id }

func (p *Peer) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Peer) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Ready implements hub.ReadyNotifier. It is nil, opting out, until the
// client sends hello with handshake set.
func (p *Peer) Ready() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *Peer) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// Send implements hub.Observer.
func (p *Peer) Send(u hub.Update) error {
	msg, err := message.NewUpdateHistory(u.Seq, u.History)
	if err != nil {
		return err
	}
	return p.enqueue(msg)
}

func (p *Peer) enqueue(msg *message.Message) error {
	if !p.Alive() {
		return ErrClosed
	}
	select {
	case p.sendCh <- msg:
		return nil
	case <-p.done:
		return ErrClosed
	default:
		slog.Warn("observer send buffer full, dropping", "observer", p.id)
		return ErrBufferFull
	}
}

// Close drops the connection. Serve returns shortly after.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// Serve registers with the hub and runs the read and write loops until the
// connection closes or ctx is cancelled.
func (p *Peer) Serve(ctx context.Context) {
	defer p.Close()
	log := slog.With("observer", p.id, "addr", p.addr)

	msgs := make(chan *message.Message)
	readErr := make(chan error, 1)
	go func() {
		for {
			msg, err := p.conn.ReadMsg()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- msg:
			case <-p.done:
				return
			}
		}
	}()
	go p.writeLoop(log)

	// Give the client a moment to say hello so its handshake preference is
	// known before the first delivery.
	var first *message.Message
	t := time.NewTimer(helloWait)
	select {
	case msg := <-msgs:
		if msg.Type == message.TypeHello {
			p.hello(msg)
		} else {
			first = msg
		}
	case <-t.C:
	case err := <-readErr:
		t.Stop()
		logReadErr(log, err)
		return
	case <-ctx.Done():
		t.Stop()
		return
	}
	t.Stop()

	p.h.Register(p)
	defer p.h.Unregister(p)
	log.Info("observer connected", "source", p.Source())

	if first != nil {
		p.handle(ctx, log, first)
	}
	for {
		select {
		case msg := <-msgs:
			p.handle(ctx, log, msg)
		case err := <-readErr:
			logReadErr(log, err)
			return
		case <-ctx.Done():
			return
		case <-p.done:
			return
		}
	}
}

func logReadErr(log *slog.Logger, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		log.Info("observer disconnected")
		return
	}
	log.Warn("observer connection failed", "err", err)
}

func (p *Peer) writeLoop(log *slog.Logger) {
	for {
		select {
		case msg := <-p.sendCh:
			if err := p.conn.WriteMsg(msg); err != nil {
				log.Error("write failed", "err", err)
				p.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// hello applies the client's self-description. It returns true when the
// client newly asked for a ready handshake.
func (p *Peer) hello(msg *message.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = msg.Source
	p.visible = msg.Visible
	if msg.Handshake && (p.ready == nil || p.readyClosed) {
		p.ready = make(chan struct{})
		p.readyClosed = false
		return true
	}
	return false
}

func (p *Peer) markReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready != nil && !p.readyClosed {
		close(p.ready)
		p.readyClosed = true
	}
}

func (p *Peer) setVisible(v bool) {
	p.mu.Lock()
	p.visible = v
	p.mu.Unlock()
}

func (p *Peer) handle(ctx context.Context, log *slog.Logger, msg *message.Message) {
	switch msg.Type {
	case message.TypeHello:
		if p.hello(msg) {
			// Arm a delivery for when the client reports ready.
			p.h.Activate(p)
		}
	case message.TypeShow:
		p.setVisible(true)
		p.h.Activate(p)
	case message.TypeHide:
		p.setVisible(false)
	case message.TypeReady:
		p.markReady()
	case message.TypeGetHistory, message.TypeCopy, message.TypeDeleteItem,
		message.TypeUpdateItem, message.TypeClearHistory:
		log.Debug("command received", "type", msg.Type)
		if err := p.d.Dispatch(ctx, p, msg); err != nil {
			_ = p.enqueue(message.NewError(err))
		}
	default:
		log.Warn("unexpected message type", "type", msg.Type)
	}
}

// ServeListener accepts connections on ln until ctx is cancelled or ln is
// closed, serving each as an observer.
func ServeListener(ctx context.Context, ln net.Listener, h *hub.Hub, d Dispatcher, key *[32]byte) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		p := New(conn, h, d, key)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Serve(ctx)
		}()
	}
}
