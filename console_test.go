package gosampler

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestConsoleRunsLines(t *testing.T) {
	s, _ := newTestSampler(t)
	in := strings.NewReader("volume 1.5\nbogus\nvolume loud\nquit\nvolume 0.1\n")
	var out bytes.Buffer

	if err := NewConsole(s, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Console failed: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "Sample volume: 1.50") {
		t.Errorf("Expected volume response, got %q", got)
	}
	if !strings.Contains(got, "error: invalid volume") {
		t.Errorf("Expected argument error to be printed, got %q", got)
	}
	if strings.Contains(got, "0.10") {
		t.Errorf("Expected lines after quit to be ignored, got %q", got)
	}
	if s.Engine().SampleVolume() != 1.5 {
		t.Errorf("Expected volume 1.5, got %f", s.Engine().SampleVolume())
	}
}

func TestConsoleEndOfInput(t *testing.T) {
	s, _ := newTestSampler(t)
	var out bytes.Buffer

	if err := NewConsole(s, strings.NewReader("limiter soft"), &out).Run(context.Background()); err != nil {
		t.Fatalf("Expected nil at end of input, got %v", err)
	}
	if out.String() != "Limiter: soft\n" {
		t.Errorf("Expected final line without newline to run, got %q", out.String())
	}
}

func TestConsoleCancelled(t *testing.T) {
	s, _ := newTestSampler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer

	if err := NewConsole(s, strings.NewReader("help\n"), &out).Run(ctx); err != nil {
		t.Fatalf("Expected nil on cancelled context, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("Expected no output, got %q", out.String())
	}
}
