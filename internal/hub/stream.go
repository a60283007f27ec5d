package hub

import "context"

// Stream is an Observer for a long-lived response stream (gRPC Watch, SSE).
// It holds at most one pending update: a slow reader skips intermediate
// snapshots rather than falling behind. A stream can accept updates as soon
// as it exists, so it is ready from creation and gets no blind resends.
type Stream struct {
	id    string
	ctx   context.Context
	ch    chan Update
	ready chan struct{}
}

// NewStream returns a Stream that stays alive until ctx is done.
func NewStream(ctx context.Context, id string) *Stream {
	ready := make(chan struct{})
	close(ready)
	return &Stream{
		id:    id,
		ctx:   ctx,
		ch:    make(chan Update, 1),
		ready: ready,
	}
}

func (s *Stream) ID() string             { return s.id }
func (s *Stream) Alive() bool            { return s.ctx.Err() == nil }
func (s *Stream) Visible() bool          { return false }
func (s *Stream) Ready() <-chan struct{} { return s.ready }

// Updates yields the newest update not yet taken by the reader.
func (s *Stream) Updates() <-chan Update { return s.ch }

// Send replaces any update the reader has not taken yet.
func (s *Stream) Send(u Update) error {
	for {
		select {
		case s.ch <- u:
			return nil
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
