package rfb

import (
	"sync"
	"time"
)

// Conn is the shared handle to a live connection. The pump goroutine
// processes inbound messages through it while viewer goroutines send
// pointer, key and clipboard events through the same handle, so every
// operation that touches the underlying client is serialized by a
// single mutex. The mutex is deliberately not held across
// WaitForReadable: a long idle wait must not starve outbound events.
type Conn struct {
	mu     sync.Mutex
	client Client

	// copyRectUsed suppresses the full-rectangle update that follows a
	// copy-rect for the same logical change. It is only ever touched
	// from protocol hooks, which run on the pump goroutine inside
	// ProcessMessage, so it needs no locking of its own.
	copyRectUsed bool
}

// NewConn wraps a connected client.
func NewConn(client Client) *Conn {
	return &Conn{client: client}
}

// WaitForReadable blocks up to timeout for inbound data. It takes no
// lock: waiting only observes the read side, and holding the send path
// hostage for up to a second per idle frame would stall viewer input.
func (c *Conn) WaitForReadable(timeout time.Duration) (bool, error) {
	return c.client.WaitForReadable(timeout)
}

// ProcessMessage processes one pending server message under the
// connection lock. Handler hooks run while the lock is held; they must
// not call back into Conn.
func (c *Conn) ProcessMessage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.ProcessMessage()
}

// SendPointerEvent forwards a pointer event to the server.
func (c *Conn) SendPointerEvent(x, y int, buttonMask uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.SendPointerEvent(x, y, buttonMask)
}

// SendKeyEvent forwards a key press or release to the server.
func (c *Conn) SendKeyEvent(keysym uint32, down bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.SendKeyEvent(keysym, down)
}

// SendCutText forwards already-encoded clipboard bytes to the server.
func (c *Conn) SendCutText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.SendCutText(data)
}

// Close closes the underlying client.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Close()
}

// MarkCopyRect records that the latest update was applied via
// copy-rect. Pump goroutine only.
func (c *Conn) MarkCopyRect() {
	c.copyRectUsed = true
}

// ConsumeCopyRect reports and clears the copy-rect flag. The flag is
// consumed by the very next full-rectangle update regardless of which
// region it covers: copy-rect and a subsequent full update are mutually
// exclusive notifications for one change, not a general debounce.
func (c *Conn) ConsumeCopyRect() bool {
	used := c.copyRectUsed
	c.copyRectUsed = false
	return used
}
