package chat

import (
	"bufio"
	"io"
	"unicode/utf8"
)

// KeyType classifies one decoded keypress.
type KeyType int

const (
	KeyRune KeyType = iota
	KeyEnter
	KeyBackspace
	KeyEsc
	KeyCtrlC
	KeyCtrlD
	KeyUp
	KeyDown
	KeyPasteStart
	KeyPasteEnd
)

// Key is one decoded input event.
type Key struct {
	Type KeyType
	Rune rune
}

// Decoder turns a raw terminal byte stream into Key events. It understands
// the CSI sequences the session cares about (arrows, bracketed paste) and
// treats an ESC with nothing buffered behind it as the ESC key itself.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps a raw-mode input stream.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks for one key. io.EOF propagates when the stream closes.
func (d *Decoder) Next() (Key, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return Key{}, err
	}

	switch b {
	case 0x03:
		return Key{Type: KeyCtrlC}, nil
	case 0x04:
		return Key{Type: KeyCtrlD}, nil
	case '\r', '\n':
		return Key{Type: KeyEnter}, nil
	case 0x7f, 0x08:
		return Key{Type: KeyBackspace}, nil
	case 0x1b:
		return d.escape()
	}

	if b < 0x20 {
		// Swallow other control bytes so they never reach the editor.
		return d.Next()
	}
	if b < utf8.RuneSelf {
		return Key{Type: KeyRune, Rune: rune(b)}, nil
	}
	return d.multibyte(b)
}

// escape decodes what follows an ESC byte. Terminals deliver a full CSI
// sequence in one burst, so an empty read buffer means the user pressed
// the ESC key itself.
func (d *Decoder) escape() (Key, error) {
	if d.r.Buffered() == 0 {
		return Key{Type: KeyEsc}, nil
	}
	b, err := d.r.ReadByte()
	if err != nil {
		return Key{Type: KeyEsc}, nil
	}
	if b != '[' {
		// Alt-modified key; surface the ESC, drop the modifier.
		return Key{Type: KeyEsc}, nil
	}

	var params []byte
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			return Key{Type: KeyEsc}, nil
		}
		if c >= 0x40 && c <= 0x7e {
			switch c {
			case 'A':
				return Key{Type: KeyUp}, nil
			case 'B':
				return Key{Type: KeyDown}, nil
			case '~':
				switch string(params) {
				case "200":
					return Key{Type: KeyPasteStart}, nil
				case "201":
					return Key{Type: KeyPasteEnd}, nil
				}
				return d.Next()
			}
			// Unhandled CSI final byte; skip the sequence.
			return d.Next()
		}
		params = append(params, c)
	}
}

func (d *Decoder) multibyte(first byte) (Key, error) {
	buf := []byte{first}
	for !utf8.FullRune(buf) && len(buf) < utf8.UTFMax {
		b, err := d.r.ReadByte()
		if err != nil {
			break
		}
		buf = append(buf, b)
	}
	r, _ := utf8.DecodeRune(buf)
	return Key{Type: KeyRune, Rune: r}, nil
}
