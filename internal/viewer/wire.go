// Package viewer pushes display frames to attached viewers over WebRTC
// data channels and feeds viewer input back into the session. Each
// viewer negotiates a peer connection through the signaling server and
// opens three channels: "display" (server to viewer frames), "input"
// (pointer, key and frame-ack events) and "clipboard" (text, both
// directions).
package viewer

import (
	"fmt"
	"image"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"vncbridge/internal/display"
)

// Display channel message types.
const (
	MsgResize    = "resize"
	MsgDraw      = "draw"
	MsgCopy      = "copy"
	MsgCursor    = "cursor"
	MsgClipboard = "clipboard"
	MsgFrame     = "frame"
	MsgAbort     = "abort"
)

// Message is one display-channel event, CBOR-encoded. Draw and cursor
// messages carry zstd-compressed RGBA pixels of Width x Height.
type Message struct {
	Type      string `cbor:"type"`
	X         int    `cbor:"x,omitempty"`
	Y         int    `cbor:"y,omitempty"`
	Width     int    `cbor:"w,omitempty"`
	Height    int    `cbor:"h,omitempty"`
	SrcX      int    `cbor:"sx,omitempty"`
	SrcY      int    `cbor:"sy,omitempty"`
	HotX      int    `cbor:"hx,omitempty"`
	HotY      int    `cbor:"hy,omitempty"`
	Pixels    []byte `cbor:"px,omitempty"`
	Text      string `cbor:"text,omitempty"`
	Timestamp int64  `cbor:"ts,omitempty"`
	Status    string `cbor:"status,omitempty"`
	Reason    string `cbor:"reason,omitempty"`
}

// InputEvent is one input-channel event, JSON-encoded as the browser
// side produces it. "ack" echoes the timestamp of the last frame the
// viewer finished processing, which drives the pump's backpressure.
type InputEvent struct {
	Type      string `json:"type"`
	X         int    `json:"x,omitempty"`
	Y         int    `json:"y,omitempty"`
	Buttons   uint8  `json:"buttons,omitempty"`
	Keysym    uint32 `json:"keysym,omitempty"`
	Down      bool   `json:"down,omitempty"`
	Timestamp int64  `json:"ts,omitempty"`
}

// Codec translates display ops to wire messages. Safe for concurrent
// use.
type Codec struct {
	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// NewCodec builds a codec with a shared zstd encoder and decoder.
func NewCodec() (*Codec, error) {
	zenc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	zdec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{zenc: zenc, zdec: zdec}, nil
}

// EncodeOp converts a display op into a CBOR wire message.
func (c *Codec) EncodeOp(op display.Op) ([]byte, error) {
	var msg Message
	switch op.Kind {
	case display.OpResize:
		msg = Message{Type: MsgResize, Width: op.W, Height: op.H}
	case display.OpDraw:
		b := op.Image.Bounds()
		msg = Message{
			Type: MsgDraw, X: op.X, Y: op.Y,
			Width: b.Dx(), Height: b.Dy(),
			Pixels: c.zenc.EncodeAll(op.Image.Pix, nil),
		}
	case display.OpCopy:
		msg = Message{
			Type: MsgCopy,
			SrcX: op.SrcX, SrcY: op.SrcY,
			Width: op.W, Height: op.H,
			X: op.X, Y: op.Y,
		}
	case display.OpCursor:
		b := op.Image.Bounds()
		msg = Message{
			Type: MsgCursor, HotX: op.HotX, HotY: op.HotY,
			Width: b.Dx(), Height: b.Dy(),
			Pixels: c.zenc.EncodeAll(op.Image.Pix, nil),
		}
	case display.OpClipboard:
		msg = Message{Type: MsgClipboard, Text: op.Text}
	case display.OpFrameEnd:
		msg = Message{Type: MsgFrame, Timestamp: op.Timestamp.UnixMilli()}
	default:
		return nil, fmt.Errorf("unknown display op kind %d", op.Kind)
	}
	return cbor.Marshal(msg)
}

// EncodeAbort builds the terminal abort message sent to viewers when
// the session fails fatally.
func (c *Codec) EncodeAbort(status, reason string) ([]byte, error) {
	return cbor.Marshal(Message{Type: MsgAbort, Status: status, Reason: reason})
}

// Decode parses one display-channel message.
func (c *Codec) Decode(data []byte) (Message, error) {
	var msg Message
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Image decompresses a draw or cursor message's pixels back into an
// RGBA image.
func (c *Codec) Image(msg Message) (*image.RGBA, error) {
	pix, err := c.zdec.DecodeAll(msg.Pixels, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress pixels: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, msg.Width, msg.Height))
	if len(pix) != len(img.Pix) {
		return nil, fmt.Errorf("pixel payload is %d bytes, want %d", len(pix), len(img.Pix))
	}
	copy(img.Pix, pix)
	return img, nil
}
