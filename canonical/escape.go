package canonical

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

func (e *encoder) writeString(s, path string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: invalid UTF-8 in string at %s", ErrCanonicalization, path)
	}

	e.buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			e.buf.WriteString(`\"`)
		case r == '\\':
			e.buf.WriteString(`\\`)
		case r == '\b':
			e.buf.WriteString(`\b`)
		case r == '\f':
			e.buf.WriteString(`\f`)
		case r == '\n':
			e.buf.WriteString(`\n`)
		case r == '\r':
			e.buf.WriteString(`\r`)
		case r == '\t':
			e.buf.WriteString(`\t`)
		case r < 0x20:
			e.writeUnicodeEscape(r)
		case r < utf8.RuneSelf:
			e.buf.WriteByte(byte(r))
		case e.opts.ASCII:
			if r > 0xFFFF {
				hi, lo := utf16.EncodeRune(r)
				e.writeUnicodeEscape(hi)
				e.writeUnicodeEscape(lo)
			} else {
				e.writeUnicodeEscape(r)
			}
		default:
			e.buf.WriteRune(r)
		}
	}
	e.buf.WriteByte('"')

	return nil
}

func (e *encoder) writeUnicodeEscape(r rune) {
	e.buf.WriteString(`\u`)
	e.buf.WriteByte(hexDigits[(r>>12)&0xF])
	e.buf.WriteByte(hexDigits[(r>>8)&0xF])
	e.buf.WriteByte(hexDigits[(r>>4)&0xF])
	e.buf.WriteByte(hexDigits[r&0xF])
}
