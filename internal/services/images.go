package services

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/reminisce-app/reminisce/internal/models"
)

// FitSize computes the largest dimensions that fit src inside target while
// preserving aspect ratio: scale = min(targetW/srcW, targetH/srcH).
func FitSize(src, target models.Size) models.Size {
	if src.Width <= 0 || src.Height <= 0 {
		return models.Size{}
	}

	scaleW := float64(target.Width) / float64(src.Width)
	scaleH := float64(target.Height) / float64(src.Height)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	return models.Size{
		Width:  int(float64(src.Width) * scale),
		Height: int(float64(src.Height) * scale),
	}
}

// LetterboxImage decodes a source image, scales it to fit inside the target
// box without cropping, and centers it on a black canvas of exactly the target
// size. The result is written to outputPath as the run's intermediate image.
func LetterboxImage(inputPath, outputPath string, target models.Size) error {
	img, err := imaging.Open(inputPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode image %s: %w", inputPath, err)
	}

	letterboxed := Letterbox(img, target)

	if err := imaging.Save(letterboxed, outputPath); err != nil {
		return fmt.Errorf("failed to save letterboxed image %s: %w", outputPath, err)
	}

	return nil
}

// Letterbox composites an already-decoded image onto a black target-size canvas.
func Letterbox(img image.Image, target models.Size) *image.NRGBA {
	bounds := img.Bounds()
	fitted := FitSize(models.Size{Width: bounds.Dx(), Height: bounds.Dy()}, target)

	resized := imaging.Resize(img, fitted.Width, fitted.Height, imaging.Lanczos)
	canvas := imaging.New(target.Width, target.Height, color.NRGBA{0, 0, 0, 255})
	return imaging.PasteCenter(canvas, resized)
}
