package services

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestShareCodeGenerate(t *testing.T) {
	g := NewShareCodeGenerator()
	out := filepath.Join(t.TempDir(), "qr.png")

	if err := g.Generate("https://example.com/media/outputs/project_x.mp4", out); err != nil {
		t.Fatalf("generate: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("share code not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("share code image is empty")
	}
}

func TestShareCodeGenerateIsIdempotent(t *testing.T) {
	g := NewShareCodeGenerator()
	dir := t.TempDir()
	first := filepath.Join(dir, "a.png")
	second := filepath.Join(dir, "b.png")

	const payload = "https://example.com/share/abc"
	if err := g.Generate(payload, first); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if err := g.Generate(payload, second); err != nil {
		t.Fatalf("second generate: %v", err)
	}

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !bytes.Equal(a, b) {
		t.Error("same payload produced different share codes")
	}
}

func TestShareCodeOverwritesInPlace(t *testing.T) {
	g := NewShareCodeGenerator()
	out := filepath.Join(t.TempDir(), "qr.png")

	if err := g.Generate("PLACEHOLDER_URL", out); err != nil {
		t.Fatalf("placeholder pass: %v", err)
	}
	placeholder, _ := os.ReadFile(out)

	if err := g.Generate("https://example.com/real", out); err != nil {
		t.Fatalf("final pass: %v", err)
	}
	final, _ := os.ReadFile(out)

	if bytes.Equal(placeholder, final) {
		t.Error("second pass did not change the encoded payload")
	}
}

func TestShareCodeRejectsEmptyPayload(t *testing.T) {
	g := NewShareCodeGenerator()
	if err := g.Generate("", filepath.Join(t.TempDir(), "qr.png")); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
