package viewer

import (
	"bytes"
	"image"
	"reflect"
	"testing"
	"time"

	"vncbridge/internal/display"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	return img
}

func TestCodecDrawRoundTrip(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatal(err)
	}

	src := testImage(16, 9)
	data, err := codec.EncodeOp(display.Op{Kind: display.OpDraw, X: 3, Y: 4, Image: src})
	if err != nil {
		t.Fatal(err)
	}

	msg, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != MsgDraw || msg.X != 3 || msg.Y != 4 || msg.Width != 16 || msg.Height != 9 {
		t.Fatalf("decoded header = %+v", msg)
	}

	img, err := codec.Image(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(img.Pix, src.Pix) {
		t.Error("pixels did not survive the round trip")
	}
}

func TestCodecCursorRoundTrip(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatal(err)
	}

	src := testImage(11, 16)
	data, err := codec.EncodeOp(display.Op{Kind: display.OpCursor, HotX: 1, HotY: 2, Image: src})
	if err != nil {
		t.Fatal(err)
	}

	msg, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != MsgCursor || msg.HotX != 1 || msg.HotY != 2 {
		t.Fatalf("decoded header = %+v", msg)
	}
	img, err := codec.Image(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(img.Pix, src.Pix) {
		t.Error("pixels did not survive the round trip")
	}
}

func TestCodecPlainOps(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatal(err)
	}

	ts := time.UnixMilli(1234567890123)
	cases := []struct {
		op   display.Op
		want Message
	}{
		{
			display.Op{Kind: display.OpResize, W: 800, H: 600},
			Message{Type: MsgResize, Width: 800, Height: 600},
		},
		{
			display.Op{Kind: display.OpCopy, SrcX: 1, SrcY: 2, W: 3, H: 4, X: 5, Y: 6},
			Message{Type: MsgCopy, SrcX: 1, SrcY: 2, Width: 3, Height: 4, X: 5, Y: 6},
		},
		{
			display.Op{Kind: display.OpClipboard, Text: "copied"},
			Message{Type: MsgClipboard, Text: "copied"},
		},
		{
			display.Op{Kind: display.OpFrameEnd, Timestamp: ts},
			Message{Type: MsgFrame, Timestamp: ts.UnixMilli()},
		},
	}

	for _, c := range cases {
		data, err := codec.EncodeOp(c.op)
		if err != nil {
			t.Fatalf("%s: %v", c.want.Type, err)
		}
		msg, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("%s: %v", c.want.Type, err)
		}
		if !reflect.DeepEqual(msg, c.want) {
			t.Errorf("%s: decoded %+v, want %+v", c.want.Type, msg, c.want)
		}
	}
}

func TestCodecAbort(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatal(err)
	}

	data, err := codec.EncodeAbort("upstream error", "connection closed")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != MsgAbort || msg.Status != "upstream error" || msg.Reason != "connection closed" {
		t.Errorf("decoded abort = %+v", msg)
	}
}

func TestCodecImageRejectsLengthMismatch(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatal(err)
	}

	data, err := codec.EncodeOp(display.Op{Kind: display.OpDraw, Image: testImage(4, 4)})
	if err != nil {
		t.Fatal(err)
	}
	msg, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}

	msg.Width = 100
	if _, err := codec.Image(msg); err == nil {
		t.Error("mismatched dimensions did not fail")
	}
}
