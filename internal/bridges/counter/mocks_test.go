package counter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-counter/internal/device"
	"github.com/nerrad567/gray-logic-counter/internal/site"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu         sync.Mutex
	published  []mockPublish
	handlers   map[string]func(topic string, payload []byte)
	connected  bool
	publishErr error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *MockMQTTClient) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedTo returns messages published to topic.
func (m *MockMQTTClient) PublishedTo(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// SimulateMessage delivers a message to every handler whose pattern matches.
// Only trailing "#" wildcards are supported.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	var matched []func(string, []byte)
	for pattern, h := range m.handlers {
		if pattern == topic || (strings.HasSuffix(pattern, "#") && strings.HasPrefix(topic, strings.TrimSuffix(pattern, "#"))) {
			matched = append(matched, h)
		}
	}
	m.mu.Unlock()

	for _, h := range matched {
		h(topic, payload)
	}
}

// fakePort is an in-memory serial port. Writes are passed to respond, whose
// return chunks become readable. Read honours the read timeout.
type fakePort struct {
	mu          sync.Mutex
	writes      []string
	failWriteAt int // 1-based write attempt that fails, 0 never
	readErr     error
	timeout     time.Duration
	closed      bool
	resets      int
	respond     func(frame string) []string

	incoming chan []byte
}

func newFakePort(respond func(frame string) []string) *fakePort {
	return &fakePort{
		respond:  respond,
		timeout:  time.Second,
		incoming: make(chan []byte, 64),
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	timeout, readErr := p.timeout, p.readErr
	p.mu.Unlock()

	if readErr != nil {
		return 0, readErr
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case chunk := <-p.incoming:
		return copy(b, chunk), nil
	case <-t.C:
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.writes = append(p.writes, string(b))
	attempt := len(p.writes)
	respond := p.respond
	fail := p.failWriteAt != 0 && attempt == p.failWriteAt
	p.mu.Unlock()

	if fail {
		return 0, errors.New("device disconnected")
	}
	if respond != nil {
		for _, chunk := range respond(string(b)) {
			p.incoming <- []byte(chunk)
		}
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = t
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	p.resets++
	p.mu.Unlock()

	for {
		select {
		case <-p.incoming:
		default:
			return nil
		}
	}
}

func (p *fakePort) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.writes))
	copy(out, p.writes)
	return out
}

func (p *fakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// openerFor returns a PortOpener that always hands out port and counts calls.
func openerFor(port Port, calls *int) PortOpener {
	return func(string, int) (Port, error) {
		*calls++
		return port, nil
	}
}

// mockTransport implements Transport for queue and handler tests.
type mockTransport struct {
	mu       sync.Mutex
	queries  int
	resets   []ResetScope
	inflight int
	maxSeen  int

	// gate, when non-nil, blocks each call until it receives a value.
	gate chan struct{}

	queryErr error
	resetErr error
	reading  Reading
}

func (m *mockTransport) enter(ctx context.Context) error {
	m.mu.Lock()
	m.inflight++
	if m.inflight > m.maxSeen {
		m.maxSeen = m.inflight
	}
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *mockTransport) leave() {
	m.mu.Lock()
	m.inflight--
	m.mu.Unlock()
}

func (m *mockTransport) Query(ctx context.Context) (Reading, error) {
	defer m.leave()
	if err := m.enter(ctx); err != nil {
		return Reading{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.queryErr != nil {
		return Reading{}, m.queryErr
	}
	r := m.reading
	if r.Entries == 0 {
		// Sequence number, so callers can see execution order.
		r.Entries = uint32(m.queries)
	}
	return r, nil
}

func (m *mockTransport) Reset(ctx context.Context, scope ResetScope) error {
	defer m.leave()
	if err := m.enter(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resets = append(m.resets, scope)
	return nil
}

func (m *mockTransport) Queries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}

func (m *mockTransport) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSeen
}

func (m *mockTransport) Resets() []ResetScope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ResetScope(nil), m.resets...)
}

// scriptedQueue returns queued results in order, repeating the last one.
type scriptedQueue struct {
	mu      sync.Mutex
	results []jobResult
	calls   int
}

func (q *scriptedQueue) SubmitQuery(context.Context) (Reading, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if len(q.results) == 0 {
		return Reading{}, ErrTimeout
	}
	res := q.results[0]
	if len(q.results) > 1 {
		q.results = q.results[1:]
	}
	return res.reading, res.err
}

func (q *scriptedQueue) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func readingWithEntries(entries uint32) jobResult {
	return jobResult{reading: Reading{
		CounterState: device.CounterState{Entries: entries, Current: entries},
		CapturedAt:   time.Now(),
	}}
}

type staticFlag struct {
	mu      sync.Mutex
	enabled bool
}

func (f *staticFlag) IsFeatureEnabled(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

type staticTenant struct {
	tenant site.Tenant
	err    error
}

func (s staticTenant) PrimaryTenant(context.Context) (site.Tenant, error) {
	return s.tenant, s.err
}

type liveCall struct {
	deviceID string
	state    device.CounterState
}

type fakeLive struct {
	mu    sync.Mutex
	calls []liveCall
	err   error
}

func (f *fakeLive) Upsert(_ context.Context, deviceID string, state device.CounterState, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, liveCall{deviceID: deviceID, state: state})
	return f.err
}

func (f *fakeLive) Calls() []liveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]liveCall(nil), f.calls...)
}

type fakeHistory struct {
	mu      sync.Mutex
	records []device.HistoryRecord
	err     error
}

func (f *fakeHistory) Append(_ context.Context, rec device.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return f.err
}

// RecordSample lets fakeHistory double as a SampleSink.
func (f *fakeHistory) RecordSample(ctx context.Context, rec device.HistoryRecord) error {
	return f.Append(ctx, rec)
}

func (f *fakeHistory) Records() []device.HistoryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]device.HistoryRecord(nil), f.records...)
}

type fakeReporter struct {
	mu     sync.Mutex
	sets   int
	clears int
	err    error
}

func (f *fakeReporter) SetCommunicationError(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	return f.err
}

func (f *fakeReporter) ClearCommunicationError(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return f.err
}

func (f *fakeReporter) Counts() (sets, clears int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets, f.clears
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
