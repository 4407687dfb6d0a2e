package board

import (
	"strings"

	"github.com/skip2/go-qrcode"
)

// QRText renders a bech32 payload (invoice, npub) as a QR code using
// half-block characters, two modules per character row. Uppercase bech32
// encodes in the denser alphanumeric mode.
func QRText(content string) (string, error) {
	q, err := qrcode.New(strings.ToUpper(content), qrcode.Medium)
	if err != nil {
		return "", err
	}
	bitmap := q.Bitmap()

	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bottom := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bottom:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bottom:
				sb.WriteRune('▄')
			default:
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// WriteQRPNG writes a bech32 payload as a PNG QR code
func WriteQRPNG(content, path string, size int) error {
	if size <= 0 {
		size = 256
	}
	return qrcode.WriteFile(strings.ToUpper(content), qrcode.Medium, size, path)
}
