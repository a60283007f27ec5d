package clip

import "sync"

// Memory is a process-local clipboard. It stands in for the system
// clipboard when no display is available and in tests.
type Memory struct {
	mu       sync.Mutex
	contents Contents
	readErr  error
	watchCh  chan struct{}
}

func NewMemory() *Memory {
	return &Memory{watchCh: make(chan struct{}, 1)}
}

func (m *Memory) Name() string { return "in-memory" }

func (m *Memory) Read() (Contents, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return Contents{}, m.readErr
	}
	c := m.contents
	c.Image = append([]byte(nil), c.Image...)
	return c, nil
}

func (m *Memory) Write(c Contents) error {
	switch {
	case c.Text != "":
		m.Set(Contents{Text: c.Text})
	case len(c.Image) > 0:
		m.Set(Contents{Image: c.Image})
	default:
		return ErrNothingToWrite
	}
	return nil
}

// Set replaces the contents as if another application had copied them.
func (m *Memory) Set(c Contents) {
	m.mu.Lock()
	m.contents = Contents{Text: c.Text, Image: append([]byte(nil), c.Image...)}
	m.mu.Unlock()
	notify(m.watchCh)
}

// SetReadError makes subsequent reads fail with err until cleared with nil.
func (m *Memory) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

func (m *Memory) Watch() <-chan struct{} { return m.watchCh }
func (m *Memory) Close()                 {}
