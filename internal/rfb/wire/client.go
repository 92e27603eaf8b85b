// Package wire is a conformant remote framebuffer protocol client
// implementing the rfb.Client contract: RFB 3.3/3.7/3.8 handshake,
// None and VNC authentication, and the raw, copy-rect, cursor and
// desktop-size encodings. It maintains the decoded framebuffer and
// reports changes through the registered rfb.Handler; it performs no
// scheduling of its own.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"vncbridge/internal/rfb"
)

// Encodings requested from the server, in preference order.
const (
	encRaw         = 0
	encCopyRect    = 1
	encCursor      = -239
	encDesktopSize = -223
)

// Server message types.
const (
	msgFramebufferUpdate   = 0
	msgSetColourMapEntries = 1
	msgBell                = 2
	msgServerCutText       = 3
)

// messageDeadline bounds the read of one server message once started;
// a server that stalls mid-message has a broken framing state.
const messageDeadline = 30 * time.Second

// maxCutTextLength caps retained server clipboard data; the remainder
// of an oversized message is consumed and discarded to keep framing.
const maxCutTextLength = 1 << 20

// Client is one live wire connection. Callers must serialize
// ProcessMessage and the Send methods (see rfb.Conn).
type Client struct {
	c  net.Conn
	br *bufio.Reader
	bw *bufio.Writer

	cfg     rfb.Config
	handler rfb.Handler

	width  int
	height int
	format rfb.PixelFormat
	fb     []byte
}

var _ rfb.Client = (*Client)(nil)

// Dial connects, performs the full handshake and leaves the connection
// ready for ProcessMessage, with a non-incremental update request
// already outstanding. The handler's resize hook fires once for the
// initial framebuffer allocation before Dial returns.
func Dial(cfg rfb.Config) (rfb.Client, error) {
	if cfg.Handler == nil {
		return nil, errors.New("wire: config has no handler")
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	cl := &Client{
		c:       c,
		br:      bufio.NewReader(c),
		bw:      bufio.NewWriter(c),
		cfg:     cfg,
		handler: cfg.Handler,
	}

	c.SetDeadline(time.Now().Add(timeout))
	if err := cl.handshake(); err != nil {
		c.Close()
		return nil, err
	}
	c.SetDeadline(time.Time{})

	return cl, nil
}

// Width returns the current framebuffer width.
func (cl *Client) Width() int { return cl.width }

// Height returns the current framebuffer height.
func (cl *Client) Height() int { return cl.height }

// PixelFormat returns the effective pixel format in use.
func (cl *Client) PixelFormat() rfb.PixelFormat { return cl.format }

// Framebuffer returns the decoded framebuffer.
func (cl *Client) Framebuffer() []byte { return cl.fb }

// Close closes the transport.
func (cl *Client) Close() error { return cl.c.Close() }

// WaitForReadable implements rfb.Client. Data already buffered counts
// as immediately readable without touching the socket.
func (cl *Client) WaitForReadable(timeout time.Duration) (bool, error) {
	if cl.br.Buffered() > 0 {
		return true, nil
	}

	// A zero timeout still needs a short real deadline: a deadline in
	// the past fails the read even when data is sitting in the socket
	// buffer, where a zero-timeout poll must report readable.
	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}

	cl.c.SetReadDeadline(time.Now().Add(timeout))
	_, err := cl.br.Peek(1)
	cl.c.SetReadDeadline(time.Time{})

	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false, nil
	}
	return false, err
}

// ProcessMessage implements rfb.Client: read and handle exactly one
// pending server message, invoking handler hooks as side effects.
func (cl *Client) ProcessMessage() error {
	cl.c.SetReadDeadline(time.Now().Add(messageDeadline))
	defer cl.c.SetReadDeadline(time.Time{})

	msgType, err := cl.br.ReadByte()
	if err != nil {
		return fmt.Errorf("read message type: %w", err)
	}

	switch msgType {
	case msgFramebufferUpdate:
		return cl.readFramebufferUpdate()
	case msgSetColourMapEntries:
		return cl.readColourMapEntries()
	case msgBell:
		return nil
	case msgServerCutText:
		return cl.readServerCutText()
	default:
		return fmt.Errorf("unsupported server message type %d", msgType)
	}
}

func (cl *Client) readFramebufferUpdate() error {
	var hdr struct {
		Pad      uint8
		NumRects uint16
	}
	if err := binary.Read(cl.br, binary.BigEndian, &hdr); err != nil {
		return fmt.Errorf("read update header: %w", err)
	}

	for i := 0; i < int(hdr.NumRects); i++ {
		var rect struct {
			X, Y, W, H uint16
			Encoding   int32
		}
		if err := binary.Read(cl.br, binary.BigEndian, &rect); err != nil {
			return fmt.Errorf("read rectangle header: %w", err)
		}

		x, y, w, h := int(rect.X), int(rect.Y), int(rect.W), int(rect.H)
		var err error
		switch rect.Encoding {
		case encRaw:
			err = cl.readRawRect(x, y, w, h)
		case encCopyRect:
			err = cl.readCopyRect(x, y, w, h)
		case encCursor:
			err = cl.readCursorRect(x, y, w, h)
		case encDesktopSize:
			cl.resize(w, h)
		default:
			err = fmt.Errorf("server sent unrequested encoding %d", rect.Encoding)
		}
		if err != nil {
			return err
		}
	}

	// Keep the update pipeline primed, matching conventional client
	// behavior: one incremental request per completed update message.
	return cl.writeFramebufferUpdateRequest(true)
}

// readRawRect reads w*h raw pixels into the framebuffer and reports
// the update. Regions outside the current framebuffer (possible
// transiently around a resize) are consumed but clipped on store. The
// stream is read one row at a time, so a hostile geometry claim costs
// one row buffer, never a w*h allocation.
func (cl *Client) readRawRect(x, y, w, h int) error {
	bpp := cl.format.BytesPerPixel()
	stride := cl.width * bpp

	rowW := w
	if x+rowW > cl.width {
		rowW = cl.width - x
	}

	row := make([]byte, w*bpp)
	for dy := 0; dy < h; dy++ {
		if _, err := io.ReadFull(cl.br, row); err != nil {
			return fmt.Errorf("read raw rectangle: %w", err)
		}
		if rowW <= 0 || y+dy >= cl.height {
			continue
		}
		copy(cl.fb[(y+dy)*stride+x*bpp:], row[:rowW*bpp])
	}

	cl.handler.HandleUpdate(cl, x, y, w, h)
	return nil
}

// readCopyRect applies a framebuffer-internal copy and reports it. The
// framebuffer is updated before the hook fires.
func (cl *Client) readCopyRect(dstX, dstY, w, h int) error {
	var src struct{ X, Y uint16 }
	if err := binary.Read(cl.br, binary.BigEndian, &src); err != nil {
		return fmt.Errorf("read copyrect origin: %w", err)
	}
	srcX, srcY := int(src.X), int(src.Y)

	// Clip rows against both the source and destination edges; a region
	// hanging past either edge copies the in-bounds part only.
	rowW := w
	if srcX+rowW > cl.width {
		rowW = cl.width - srcX
	}
	if dstX+rowW > cl.width {
		rowW = cl.width - dstX
	}

	if rowW > 0 {
		bpp := cl.format.BytesPerPixel()
		stride := cl.width * bpp
		tmp := make([]byte, rowW*h*bpp)
		for dy := 0; dy < h; dy++ {
			if srcY+dy >= cl.height {
				break
			}
			copy(tmp[dy*rowW*bpp:], cl.fb[(srcY+dy)*stride+srcX*bpp:(srcY+dy)*stride+(srcX+rowW)*bpp])
		}
		for dy := 0; dy < h; dy++ {
			if dstY+dy >= cl.height {
				break
			}
			copy(cl.fb[(dstY+dy)*stride+dstX*bpp:(dstY+dy)*stride+(dstX+rowW)*bpp], tmp[dy*rowW*bpp:(dy+1)*rowW*bpp])
		}
	}

	cl.handler.HandleCopyRect(cl, srcX, srcY, w, h, dstX, dstY)
	return nil
}

// readCursorRect reads a cursor pseudo-encoding rectangle: w*h raw
// pixels followed by a bitmask with byte-aligned rows. The mask is
// expanded to one byte per pixel before being handed off to the
// handler, which takes ownership of it; the color buffer stays owned
// here and is only valid during the hook call.
func (cl *Client) readCursorRect(hotX, hotY, w, h int) error {
	bpp := cl.format.BytesPerPixel()
	color := make([]byte, w*h*bpp)
	if _, err := io.ReadFull(cl.br, color); err != nil {
		return fmt.Errorf("read cursor pixels: %w", err)
	}

	maskStride := (w + 7) / 8
	packed := make([]byte, maskStride*h)
	if _, err := io.ReadFull(cl.br, packed); err != nil {
		return fmt.Errorf("read cursor mask: %w", err)
	}

	mask := make([]byte, w*h)
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			if packed[dy*maskStride+dx/8]&(0x80>>(dx%8)) != 0 {
				mask[dy*w+dx] = 1
			}
		}
	}

	if cl.cfg.EnableCursor {
		cl.handler.HandleCursor(cl, hotX, hotY, w, h, bpp, color, mask)
	}
	return nil
}

// resize reallocates the framebuffer and reports the new geometry
// before any further updates are decoded.
func (cl *Client) resize(w, h int) {
	cl.width, cl.height = w, h
	cl.fb = make([]byte, w*h*cl.format.BytesPerPixel())
	cl.handler.HandleResize(cl, w, h)
}

func (cl *Client) readColourMapEntries() error {
	var hdr struct {
		Pad        uint8
		FirstColor uint16
		NColors    uint16
	}
	if err := binary.Read(cl.br, binary.BigEndian, &hdr); err != nil {
		return fmt.Errorf("read colour map header: %w", err)
	}
	// True-color formats only; consume and ignore the palette.
	if _, err := io.CopyN(io.Discard, cl.br, int64(hdr.NColors)*6); err != nil {
		return fmt.Errorf("read colour map entries: %w", err)
	}
	return nil
}

func (cl *Client) readServerCutText() error {
	var hdr struct {
		Pad    [3]uint8
		Length uint32
	}
	if err := binary.Read(cl.br, binary.BigEndian, &hdr); err != nil {
		return fmt.Errorf("read cut text header: %w", err)
	}

	keep := int64(hdr.Length)
	if keep > maxCutTextLength {
		keep = maxCutTextLength
	}
	data := make([]byte, keep)
	if _, err := io.ReadFull(cl.br, data); err != nil {
		return fmt.Errorf("read cut text: %w", err)
	}
	if rest := int64(hdr.Length) - keep; rest > 0 {
		if _, err := io.CopyN(io.Discard, cl.br, rest); err != nil {
			return fmt.Errorf("discard oversized cut text: %w", err)
		}
	}

	if cl.cfg.EnableCutText {
		cl.handler.HandleCutText(cl, data)
	}
	return nil
}

// SendPointerEvent implements rfb.Client.
func (cl *Client) SendPointerEvent(x, y int, buttonMask uint8) error {
	msg := struct {
		Type    uint8
		Buttons uint8
		X, Y    uint16
	}{Type: 5, Buttons: buttonMask, X: uint16(x), Y: uint16(y)}
	return cl.send(msg, nil)
}

// SendKeyEvent implements rfb.Client.
func (cl *Client) SendKeyEvent(keysym uint32, down bool) error {
	msg := struct {
		Type   uint8
		Down   uint8
		Pad    [2]uint8
		Keysym uint32
	}{Type: 4, Keysym: keysym}
	if down {
		msg.Down = 1
	}
	return cl.send(msg, nil)
}

// SendCutText implements rfb.Client.
func (cl *Client) SendCutText(data []byte) error {
	msg := struct {
		Type   uint8
		Pad    [3]uint8
		Length uint32
	}{Type: 6, Length: uint32(len(data))}
	return cl.send(msg, data)
}

func (cl *Client) writeFramebufferUpdateRequest(incremental bool) error {
	msg := struct {
		Type        uint8
		Incremental uint8
		X, Y, W, H  uint16
	}{Type: 3, W: uint16(cl.width), H: uint16(cl.height)}
	if incremental {
		msg.Incremental = 1
	}
	return cl.send(msg, nil)
}

// send writes one fixed-layout message plus optional trailing payload
// and flushes.
func (cl *Client) send(msg any, payload []byte) error {
	if err := binary.Write(cl.bw, binary.BigEndian, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if len(payload) > 0 {
		if _, err := cl.bw.Write(payload); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	if err := cl.bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
