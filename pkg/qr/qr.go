package qr

import (
	qrcode "github.com/skip2/go-qrcode"
)

// Generate renders content as a PNG QR code of the given pixel size.
// Ticket QR payloads are the booking id, nothing more.
func Generate(content string, size int) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, size)
}
