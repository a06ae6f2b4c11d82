package pdf

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QREncoder renders verification payloads as PNG QR codes.
type QREncoder struct {
	Level qrcode.RecoveryLevel
}

func NewQREncoder() *QREncoder { return &QREncoder{Level: qrcode.Medium} }

// Encode writes a px x px PNG to outPath.
func (q *QREncoder) Encode(payload string, px int, outPath string) error {
	if payload == "" {
		return fmt.Errorf("empty verification payload")
	}
	code, err := qrcode.New(payload, q.Level)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := code.WriteFile(px, outPath); err != nil {
		return fmt.Errorf("failed to write code image: %w", err)
	}
	return nil
}
