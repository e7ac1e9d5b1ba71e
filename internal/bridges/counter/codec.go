package counter

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Codec defaults.
const (
	DefaultBaudRate        = 9600
	DefaultResponseTimeout = 1000 * time.Millisecond

	// DefaultResetDelay separates the frames of a full reset. The sensor
	// drops commands that arrive closer together.
	DefaultResetDelay = 50 * time.Millisecond

	// readSlice is the longest single blocking read, so a cancelled context
	// is noticed well before the response deadline.
	readSlice = 100 * time.Millisecond

	readChunk = 64
)

// CodecConfig configures a Codec.
type CodecConfig struct {
	// Path is the serial device, e.g. /dev/ttyUSB0.
	Path string

	// BaudRate defaults to 9600.
	BaudRate int

	// ResponseTimeout bounds one query. Default: 1s.
	ResponseTimeout time.Duration

	// ResetDelay separates reset frames. Default: 50ms.
	ResetDelay time.Duration

	// LineEnding is appended to every frame. Default: "\r".
	LineEnding string

	// Simulate replaces the device with an in-memory random walk.
	Simulate bool

	// SimulationDelay is the simulated response latency. Default: 50ms.
	SimulationDelay time.Duration

	// Simulator overrides the generator used when Simulate is set.
	Simulator *Simulator

	// Opener overrides how the port is opened. Default: OpenSerialPort.
	Opener PortOpener
}

// CodecStats holds codec counters for health reporting.
type CodecStats struct {
	FramesSent      uint64    `json:"frames_sent"`
	FramesReceived  uint64    `json:"frames_received"`
	Timeouts        uint64    `json:"timeouts"`
	MalformedFrames uint64    `json:"malformed_frames"`
	WriteErrors     uint64    `json:"write_errors"`
	OpenFailures    uint64    `json:"open_failures"`
	LastActivity    time.Time `json:"last_activity"`
	Open            bool      `json:"open"`
	Simulated       bool      `json:"simulated"`
}

// Transport is what the access queue drives. *Codec implements it.
type Transport interface {
	Query(ctx context.Context) (Reading, error)
	Reset(ctx context.Context, scope ResetScope) error
}

// Ensure Codec implements Transport.
var _ Transport = (*Codec)(nil)

// Codec owns the serial connection to one people counter. It encodes
// command frames, reads and decodes responses, and enforces the response
// deadline.
//
// Thread Safety:
//   - All methods are safe for concurrent use, but operations are
//     serialised by an internal mutex. Route traffic through a Queue so
//     callers are served in FIFO order.
type Codec struct {
	cfg    CodecConfig
	opener PortOpener
	sim    *Simulator

	mu   sync.Mutex
	port Port

	framesSent      atomic.Uint64
	framesReceived  atomic.Uint64
	timeouts        atomic.Uint64
	malformedFrames atomic.Uint64
	writeErrors     atomic.Uint64
	openFailures    atomic.Uint64
	lastActivity    atomic.Int64
	open            atomic.Bool

	now func() time.Time
}

// NewCodec creates a codec. The port is opened lazily by the first
// operation, or explicitly with Open.
func NewCodec(cfg CodecConfig) *Codec {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = DefaultResetDelay
	}
	if cfg.LineEnding == "" {
		cfg.LineEnding = DefaultLineEnding
	}

	c := &Codec{
		cfg:    cfg,
		opener: cfg.Opener,
		now:    time.Now,
	}
	if c.opener == nil {
		c.opener = OpenSerialPort
	}
	if cfg.Simulate {
		c.sim = cfg.Simulator
		if c.sim == nil {
			c.sim = NewSimulator(SimulatorConfig{Delay: cfg.SimulationDelay})
		}
	}
	return c
}

// Open opens the serial port. It is idempotent: an open codec returns nil
// immediately. An empty path uses the configured path. In simulation mode
// no port is ever opened.
func (c *Codec) Open(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked(path)
}

func (c *Codec) openLocked(path string) error {
	if c.sim != nil || c.port != nil {
		return nil
	}
	if path == "" {
		path = c.cfg.Path
	}

	port, err := c.opener(path, c.cfg.BaudRate)
	if err != nil {
		c.openFailures.Add(1)
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	c.port = port
	c.open.Store(true)
	return nil
}

// Close releases the serial port. The next operation reopens it.
func (c *Codec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Codec) closeLocked() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	c.open.Store(false)
	if err != nil {
		return fmt.Errorf("closing port: %w", err)
	}
	return nil
}

// IsOpen reports whether a port is held. Always true in simulation mode.
func (c *Codec) IsOpen() bool {
	return c.sim != nil || c.open.Load()
}

// Query sends the read-state frame and waits for one response frame.
//
// The wait ends at the first ']' or at the response deadline, whichever
// comes first; a deadline on ctx that is earlier wins. Errors wrap one of
// ErrTransportUnavailable, ErrWriteFailed, ErrTransport, ErrTimeout or
// ErrMalformedFrame.
func (c *Codec) Query(ctx context.Context) (Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sim != nil {
		r, err := c.sim.Query(ctx)
		if err == nil {
			c.framesSent.Add(1)
			c.framesReceived.Add(1)
			c.touch()
		}
		return r, err
	}

	if err := c.openLocked(""); err != nil {
		return Reading{}, err
	}

	deadline := c.now().Add(c.cfg.ResponseTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// Stale bytes from an earlier timed-out exchange would corrupt this one.
	_ = c.port.ResetInputBuffer() //nolint:errcheck // Best effort, the parser also skips leading noise

	if err := c.writeLocked(EncodeQuery(c.cfg.LineEnding)); err != nil {
		return Reading{}, err
	}

	buf := make([]byte, 0, maxFrameLen)
	chunk := make([]byte, readChunk)
	for {
		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			c.timeouts.Add(1)
			return Reading{}, fmt.Errorf("%w after %v (%d bytes buffered)", ErrTimeout, c.cfg.ResponseTimeout, len(buf))
		}
		if err := ctx.Err(); err != nil {
			return Reading{}, err
		}

		if err := c.port.SetReadTimeout(min(remaining, readSlice)); err != nil {
			c.closeLocked() //nolint:errcheck // Port is already unusable
			return Reading{}, fmt.Errorf("%w: set read timeout: %w", ErrTransport, err)
		}

		n, err := c.port.Read(chunk)
		if err != nil {
			c.closeLocked() //nolint:errcheck // Port is already unusable
			return Reading{}, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		if n == 0 {
			continue
		}

		buf = append(buf, chunk[:n]...)
		if bytes.IndexByte(buf, frameEnd) >= 0 {
			r, err := ParseFrame(string(buf))
			if err != nil {
				c.malformedFrames.Add(1)
				return Reading{}, err
			}
			r.CapturedAt = c.now()
			c.framesReceived.Add(1)
			c.touch()
			return r, nil
		}

		if len(buf) > maxFrameLen {
			c.malformedFrames.Add(1)
			return Reading{}, fmt.Errorf("%w: %d bytes without terminator", ErrMalformedFrame, len(buf))
		}
	}
}

// Reset clears counters on the device. ResetAll sends the current, entries
// and exits frames in that order with the configured delay between them.
// No response is read. The first failed write aborts the sequence.
func (c *Codec) Reset(ctx context.Context, scope ResetScope) error {
	seq, err := resetSequence(scope)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sim != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.sim.Reset(seq...)
		c.framesSent.Add(uint64(len(seq)))
		c.touch()
		return nil
	}

	if err := c.openLocked(""); err != nil {
		return err
	}

	for i, s := range seq {
		if i > 0 {
			if err := sleepCtx(ctx, c.cfg.ResetDelay); err != nil {
				return err
			}
		}

		frame, err := EncodeReset(s, c.cfg.LineEnding)
		if err != nil {
			return err
		}
		if err := c.writeLocked(frame); err != nil {
			return fmt.Errorf("reset %s: %w", s, err)
		}
	}
	return nil
}

// Stats returns a snapshot of the codec counters.
func (c *Codec) Stats() CodecStats {
	var last time.Time
	if ts := c.lastActivity.Load(); ts != 0 {
		last = time.Unix(0, ts)
	}
	return CodecStats{
		FramesSent:      c.framesSent.Load(),
		FramesReceived:  c.framesReceived.Load(),
		Timeouts:        c.timeouts.Load(),
		MalformedFrames: c.malformedFrames.Load(),
		WriteErrors:     c.writeErrors.Load(),
		OpenFailures:    c.openFailures.Load(),
		LastActivity:    last,
		Open:            c.IsOpen(),
		Simulated:       c.sim != nil,
	}
}

// writeLocked writes one frame. A failed write drops the port so the next
// operation reopens it.
func (c *Codec) writeLocked(frame []byte) error {
	n, err := c.port.Write(frame)
	if err == nil && n != len(frame) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(frame))
	}
	if err != nil {
		c.writeErrors.Add(1)
		c.closeLocked() //nolint:errcheck // Port is already unusable
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	c.framesSent.Add(1)
	return nil
}

func (c *Codec) touch() {
	c.lastActivity.Store(c.now().UnixNano())
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
