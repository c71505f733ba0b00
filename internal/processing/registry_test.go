package processing_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hubward/internal/catalog"
	"hubward/internal/logging"
	"hubward/internal/processing"
)

type stubProcessor struct {
	mediaType catalog.MediaType
	priority  int
	accepts   func(string) bool
	result    processing.Result
}

func (s stubProcessor) SupportedType() catalog.MediaType { return s.mediaType }
func (s stubProcessor) Priority() int                    { return s.priority }
func (s stubProcessor) CanProcess(path string) bool      { return s.accepts(path) }
func (s stubProcessor) Process(context.Context, string) (processing.Result, error) {
	return s.result, nil
}

func TestResolvePrefersHighestPriority(t *testing.T) {
	low := stubProcessor{
		mediaType: catalog.MediaEpub,
		priority:  1,
		accepts:   func(string) bool { return true },
	}
	high := stubProcessor{
		mediaType: catalog.MediaComic,
		priority:  10,
		accepts:   func(string) bool { return true },
	}
	registry := processing.NewRegistry([]processing.Processor{low, high}, nil, 1, logging.NewNop())

	resolved := registry.Resolve("/inbox/sample.cbz")
	if resolved.SupportedType() != catalog.MediaComic {
		t.Fatalf("expected highest-priority processor, got %s", resolved.SupportedType())
	}
}

func TestResolveFallsBackWhenNoneAccept(t *testing.T) {
	picky := stubProcessor{
		mediaType: catalog.MediaEpub,
		priority:  5,
		accepts:   func(path string) bool { return strings.HasSuffix(path, ".epub") },
	}
	registry := processing.NewRegistry([]processing.Processor{picky}, nil, 1, logging.NewNop())

	resolved := registry.Resolve("/inbox/mystery.bin")
	if resolved.SupportedType() != catalog.MediaUnknown {
		t.Fatalf("expected fallback, got %s", resolved.SupportedType())
	}
}

func TestFallbackInfersTitleFromFilename(t *testing.T) {
	registry := processing.NewRegistry(nil, nil, 1, logging.NewNop())
	result, err := registry.Process(context.Background(), "/inbox/The_Left.Hand.of_Darkness.epub")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Claims) != 1 || result.Claims[0].Key != "title" {
		t.Fatalf("expected a single title claim, got %#v", result.Claims)
	}
	if result.Claims[0].Value != "The Left Hand of Darkness" {
		t.Fatalf("unexpected inferred title %q", result.Claims[0].Value)
	}
}

func TestSniffPrefixReadsAtMostSixteenBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample")
	if err := os.WriteFile(path, []byte("PK\x03\x04 plus a longer tail"), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}

	prefix, err := processing.SniffPrefix(path)
	if err != nil {
		t.Fatalf("SniffPrefix failed: %v", err)
	}
	if len(prefix) != processing.SniffLength {
		t.Fatalf("expected %d bytes, got %d", processing.SniffLength, len(prefix))
	}
	if !processing.HasMagic(path, []byte("PK\x03\x04")) {
		t.Fatal("expected magic match")
	}
	if processing.HasMagic(path, []byte("%PDF")) {
		t.Fatal("unexpected magic match")
	}
}
