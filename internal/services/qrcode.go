package services

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// shareCodeSize matches 10px modules with a 4-module border on a version-1
// code: (21 + 2*4) * 10.
const shareCodeSize = 290

// ShareCodeGenerator renders scannable share codes for published artifacts.
type ShareCodeGenerator struct{}

func NewShareCodeGenerator() *ShareCodeGenerator {
	return &ShareCodeGenerator{}
}

// Generate encodes payload into a share-code image at outputPath, overwriting
// any previous image. Repeated calls with the same payload produce an
// equivalent code, so regeneration is idempotent.
func (g *ShareCodeGenerator) Generate(payload, outputPath string) error {
	if payload == "" {
		return fmt.Errorf("share code payload is empty")
	}

	if err := qrcode.WriteFile(payload, qrcode.Low, shareCodeSize, outputPath); err != nil {
		return fmt.Errorf("failed to write share code: %w", err)
	}

	return nil
}
