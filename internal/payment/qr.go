package payment

import (
	"bytes"
	"encoding/base64"
	"strings"

	"storefront/internal/model"

	qrcode "github.com/skip2/go-qrcode"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// RenderQR returns a PNG of the invoice's QR code: the gateway's own image
// when qrCode decodes to one, otherwise an image encoded from the QR text.
func RenderQR(invoice *model.PaymentInvoice, size int) ([]byte, error) {
	if !invoice.HasQR() {
		return nil, model.ErrNoQRCode
	}

	if img, ok := decodePNG(invoice.QRCode); ok {
		return img, nil
	}

	text := invoice.QRText
	if text == "" {
		text = invoice.QRCode
	}
	return qrcode.Encode(text, qrcode.Medium, size)
}

func decodePNG(s string) ([]byte, bool) {
	if s == "" {
		return nil, false
	}
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil || !bytes.HasPrefix(img, pngSignature) {
		return nil, false
	}
	return img, true
}
