package clipboard

import "sync"

// Clipboard is the session clipboard: the most recent text received
// from either side, kept so late-joining viewers can be brought up to
// date. Updates are a reset-then-append: incoming data always replaces
// the previous contents.
type Clipboard struct {
	mu       sync.Mutex
	mimetype string
	data     []byte
}

// New returns an empty clipboard.
func New() *Clipboard {
	return &Clipboard{mimetype: "text/plain"}
}

// Reset clears the clipboard and records the mimetype of the data that
// will follow.
func (cb *Clipboard) Reset(mimetype string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.mimetype = mimetype
	cb.data = cb.data[:0]
}

// Append adds data to the clipboard, silently dropping anything past
// MaxLength.
func (cb *Clipboard) Append(data []byte) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if room := MaxLength - len(cb.data); room < len(data) {
		data = data[:room]
	}
	cb.data = append(cb.data, data...)
}

// Contents returns the current mimetype and a copy of the data.
func (cb *Clipboard) Contents() (string, []byte) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	out := make([]byte, len(cb.data))
	copy(out, cb.data)
	return cb.mimetype, out
}
