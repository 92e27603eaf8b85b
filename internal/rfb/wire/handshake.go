package wire

import (
	"crypto/des"
	"encoding/binary"
	"fmt"
	"io"

	"vncbridge/internal/rfb"
)

// Security types.
const (
	secInvalid = 0
	secNone    = 1
	secVNCAuth = 2
)

// handshake runs the version and security negotiation, ClientInit and
// ServerInit, pushes the requested pixel format and encodings, and
// issues the initial non-incremental update request.
func (cl *Client) handshake() error {
	version, err := cl.negotiateVersion()
	if err != nil {
		return err
	}
	if err := cl.negotiateSecurity(version); err != nil {
		return err
	}

	// ClientInit: request a shared session.
	if _, err := cl.bw.Write([]byte{1}); err != nil {
		return fmt.Errorf("write client init: %w", err)
	}
	if err := cl.bw.Flush(); err != nil {
		return fmt.Errorf("flush client init: %w", err)
	}

	if err := cl.readServerInit(); err != nil {
		return err
	}
	if err := cl.setPixelFormat(cl.cfg.RequestedFormat); err != nil {
		return err
	}
	if err := cl.setEncodings(); err != nil {
		return err
	}

	cl.resize(cl.width, cl.height)
	return cl.writeFramebufferUpdateRequest(false)
}

// negotiateVersion reads the server's protocol version and answers with
// the highest version this client shares with it. Returns the minor
// version agreed on (3 for 3.3, 7 for 3.7, 8 for 3.8).
func (cl *Client) negotiateVersion() (int, error) {
	var buf [12]byte
	if _, err := io.ReadFull(cl.br, buf[:]); err != nil {
		return 0, fmt.Errorf("read protocol version: %w", err)
	}

	var major, minor int
	if _, err := fmt.Sscanf(string(buf[:]), "RFB %d.%d\n", &major, &minor); err != nil {
		return 0, fmt.Errorf("malformed protocol version %q", buf[:])
	}
	if major != 3 || minor < 3 {
		return 0, fmt.Errorf("unsupported protocol version %d.%d", major, minor)
	}

	// 3.4 and 3.5 are treated as 3.3; anything past 3.8 speaks 3.8.
	switch {
	case minor >= 8:
		minor = 8
	case minor == 7:
		minor = 7
	default:
		minor = 3
	}

	if _, err := fmt.Fprintf(cl.bw, "RFB 003.%03d\n", minor); err != nil {
		return 0, fmt.Errorf("write protocol version: %w", err)
	}
	if err := cl.bw.Flush(); err != nil {
		return 0, fmt.Errorf("flush protocol version: %w", err)
	}
	return minor, nil
}

func (cl *Client) negotiateSecurity(version int) error {
	secType, err := cl.chooseSecurity(version)
	if err != nil {
		return err
	}

	if secType == secVNCAuth {
		if err := cl.vncAuth(); err != nil {
			return err
		}
	}

	// SecurityResult follows None only from 3.8 on.
	if secType == secVNCAuth || version >= 8 {
		var result uint32
		if err := binary.Read(cl.br, binary.BigEndian, &result); err != nil {
			return fmt.Errorf("read security result: %w", err)
		}
		if result != 0 {
			reason := "authentication failed"
			if version >= 8 {
				if r, err := cl.readReason(); err == nil {
					reason = r
				}
			}
			return fmt.Errorf("security handshake rejected: %s", reason)
		}
	}
	return nil
}

func (cl *Client) chooseSecurity(version int) (uint8, error) {
	if version == 3 {
		// 3.3: the server decides.
		var secType uint32
		if err := binary.Read(cl.br, binary.BigEndian, &secType); err != nil {
			return 0, fmt.Errorf("read security type: %w", err)
		}
		switch secType {
		case secInvalid:
			reason, _ := cl.readReason()
			return 0, fmt.Errorf("connection refused: %s", reason)
		case secNone, secVNCAuth:
			return uint8(secType), nil
		default:
			return 0, fmt.Errorf("unsupported security type %d", secType)
		}
	}

	// 3.7+: the server offers a list and the client picks.
	count, err := cl.br.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("read security type count: %w", err)
	}
	if count == 0 {
		reason, _ := cl.readReason()
		return 0, fmt.Errorf("connection refused: %s", reason)
	}
	offered := make([]byte, count)
	if _, err := io.ReadFull(cl.br, offered); err != nil {
		return 0, fmt.Errorf("read security types: %w", err)
	}

	var chosen uint8
	for _, t := range offered {
		if t == secNone {
			chosen = secNone
			break
		}
		if t == secVNCAuth {
			chosen = secVNCAuth
		}
	}
	if chosen == 0 {
		return 0, fmt.Errorf("no supported security type among %v", offered)
	}

	if err := cl.bw.WriteByte(chosen); err != nil {
		return 0, fmt.Errorf("write security type: %w", err)
	}
	if err := cl.bw.Flush(); err != nil {
		return 0, fmt.Errorf("flush security type: %w", err)
	}
	return chosen, nil
}

// vncAuth answers the classic challenge: the challenge is DES-encrypted
// with a key built from the first eight password bytes, each with its
// bits mirrored.
func (cl *Client) vncAuth() error {
	var challenge [16]byte
	if _, err := io.ReadFull(cl.br, challenge[:]); err != nil {
		return fmt.Errorf("read auth challenge: %w", err)
	}

	password := cl.handler.Password(cl)
	var key [8]byte
	for i := 0; i < len(key) && i < len(password); i++ {
		key[i] = mirrorByte(password[i])
	}

	block, err := des.NewCipher(key[:])
	if err != nil {
		return fmt.Errorf("auth cipher: %w", err)
	}

	var response [16]byte
	block.Encrypt(response[:8], challenge[:8])
	block.Encrypt(response[8:], challenge[8:])

	if _, err := cl.bw.Write(response[:]); err != nil {
		return fmt.Errorf("write auth response: %w", err)
	}
	if err := cl.bw.Flush(); err != nil {
		return fmt.Errorf("flush auth response: %w", err)
	}
	return nil
}

func mirrorByte(b byte) byte {
	var out byte
	for i := 0; i < 8; i++ {
		out = out<<1 | (b>>i)&1
	}
	return out
}

// readReason consumes a length-prefixed failure reason string.
func (cl *Client) readReason() (string, error) {
	var length uint32
	if err := binary.Read(cl.br, binary.BigEndian, &length); err != nil {
		return "", err
	}
	if length > 4096 {
		length = 4096
	}
	reason := make([]byte, length)
	if _, err := io.ReadFull(cl.br, reason); err != nil {
		return "", err
	}
	return string(reason), nil
}

func (cl *Client) readServerInit() error {
	var init struct {
		Width, Height uint16
		Format        [16]byte
		NameLength    uint32
	}
	if err := binary.Read(cl.br, binary.BigEndian, &init); err != nil {
		return fmt.Errorf("read server init: %w", err)
	}
	if _, err := io.CopyN(io.Discard, cl.br, int64(init.NameLength)); err != nil {
		return fmt.Errorf("read desktop name: %w", err)
	}

	cl.width = int(init.Width)
	cl.height = int(init.Height)
	cl.format = decodePixelFormat(init.Format)
	return nil
}

func decodePixelFormat(raw [16]byte) rfb.PixelFormat {
	return rfb.PixelFormat{
		BitsPerPixel: raw[0],
		Depth:        raw[1],
		BigEndian:    raw[2] != 0,
		TrueColor:    raw[3] != 0,
		RedMax:       binary.BigEndian.Uint16(raw[4:6]),
		GreenMax:     binary.BigEndian.Uint16(raw[6:8]),
		BlueMax:      binary.BigEndian.Uint16(raw[8:10]),
		RedShift:     raw[10],
		GreenShift:   raw[11],
		BlueShift:    raw[12],
	}
}

func encodePixelFormat(pf rfb.PixelFormat) [16]byte {
	var raw [16]byte
	raw[0] = pf.BitsPerPixel
	raw[1] = pf.Depth
	if pf.BigEndian {
		raw[2] = 1
	}
	if pf.TrueColor {
		raw[3] = 1
	}
	binary.BigEndian.PutUint16(raw[4:6], pf.RedMax)
	binary.BigEndian.PutUint16(raw[6:8], pf.GreenMax)
	binary.BigEndian.PutUint16(raw[8:10], pf.BlueMax)
	raw[10] = pf.RedShift
	raw[11] = pf.GreenShift
	raw[12] = pf.BlueShift
	return raw
}

// setPixelFormat asks the server to switch formats and records the new
// format as effective; servers honor SetPixelFormat or drop the
// connection.
func (cl *Client) setPixelFormat(pf rfb.PixelFormat) error {
	if pf.BitsPerPixel == 0 {
		return nil
	}
	msg := struct {
		Type   uint8
		Pad    [3]uint8
		Format [16]byte
	}{Format: encodePixelFormat(pf)}
	if err := cl.send(msg, nil); err != nil {
		return fmt.Errorf("set pixel format: %w", err)
	}
	cl.format = pf
	return nil
}

func (cl *Client) setEncodings() error {
	encodings := []int32{encCopyRect, encRaw}
	if cl.cfg.EnableCursor {
		encodings = append(encodings, encCursor)
	}
	encodings = append(encodings, encDesktopSize)

	hdr := struct {
		Type  uint8
		Pad   uint8
		Count uint16
	}{Type: 2, Count: uint16(len(encodings))}
	if err := binary.Write(cl.bw, binary.BigEndian, hdr); err != nil {
		return fmt.Errorf("write set encodings: %w", err)
	}
	if err := binary.Write(cl.bw, binary.BigEndian, encodings); err != nil {
		return fmt.Errorf("write encoding list: %w", err)
	}
	if err := cl.bw.Flush(); err != nil {
		return fmt.Errorf("flush set encodings: %w", err)
	}
	return nil
}
