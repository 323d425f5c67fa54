package player

import (
	"sync"
	"time"
)

// MockResource is a test double for Resource.
type MockResource struct {
	mu         sync.Mutex
	url        string
	events     Events
	playErr    error
	playCalls  int
	pauseCalls int
	seeks      []time.Duration
	volume     int
	rate       float64
	closed     bool
}

func (m *MockResource) Source() string { return m.url }

func (m *MockResource) Play() error {
	m.mu.Lock()
	m.playCalls++
	err := m.playErr
	closed := m.closed
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if !closed && m.events.OnPlaying != nil {
		m.events.OnPlaying()
	}
	return nil
}

func (m *MockResource) Pause() {
	m.mu.Lock()
	m.pauseCalls++
	m.mu.Unlock()
	if m.events.OnPaused != nil {
		m.events.OnPaused()
	}
}

func (m *MockResource) Seek(position time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeks = append(m.seeks, position)
	return nil
}

func (m *MockResource) SetVolume(percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = percent
}

func (m *MockResource) SetRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = rate
}

func (m *MockResource) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// Test helpers

func (m *MockResource) PlayCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playCalls
}

func (m *MockResource) PauseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseCalls
}

func (m *MockResource) Seeks() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.seeks...)
}

func (m *MockResource) Volume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

func (m *MockResource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockResource) SetPlayError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

func (m *MockResource) EmitMetadata(d time.Duration) { m.events.OnMetadata(d) }

func (m *MockResource) EmitTimeUpdate(pos time.Duration) { m.events.OnTimeUpdate(pos) }

func (m *MockResource) EmitWaiting() { m.events.OnWaiting() }

func (m *MockResource) EmitEnded() { m.events.OnEnded() }

func (m *MockResource) EmitError(err error) { m.events.OnError(err) }

// MockFactory creates MockResources and remembers them.
type MockFactory struct {
	mu      sync.Mutex
	created []*MockResource
	playErr error
}

// NewMockFactory creates a factory whose resources start successfully.
func NewMockFactory() *MockFactory {
	return &MockFactory{}
}

// New implements ResourceFactory.
func (f *MockFactory) New(url string, events Events) Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &MockResource{url: url, events: events, playErr: f.playErr, rate: DefaultRate}
	f.created = append(f.created, r)
	return r
}

// SetPlayError makes resources created afterwards fail Play with err.
func (f *MockFactory) SetPlayError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playErr = err
}

// Created returns every resource built so far, oldest first.
func (f *MockFactory) Created() []*MockResource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockResource(nil), f.created...)
}

// Last returns the most recently built resource, or nil.
func (f *MockFactory) Last() *MockResource {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// Verify MockResource implements Resource at compile time.
var _ Resource = (*MockResource)(nil)
