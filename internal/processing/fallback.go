package processing

import (
	"context"
	"math"
	"path/filepath"
	"strings"

	"hubward/internal/catalog"
)

// FilesystemProvider is the provider id attached to claims inferred from the
// file itself rather than an external source.
const FilesystemProvider = "filesystem"

// fallbackProcessor accepts anything and infers a low-confidence title from
// the filename. It anchors the bottom of the registry so every candidate
// yields at least one claim.
type fallbackProcessor struct{}

// NewFallbackProcessor returns the unconditional last-resort processor.
func NewFallbackProcessor() Processor {
	return fallbackProcessor{}
}

func (fallbackProcessor) SupportedType() catalog.MediaType { return catalog.MediaUnknown }

func (fallbackProcessor) Priority() int { return math.MinInt }

func (fallbackProcessor) CanProcess(string) bool { return true }

func (fallbackProcessor) Process(_ context.Context, path string) (Result, error) {
	return Result{
		DetectedType: catalog.MediaUnknown,
		Claims: []ExtractedClaim{
			{Key: "title", Value: TitleFromPath(path), Confidence: 0.3},
		},
	}, nil
}

// TitleFromPath infers a human-readable title from a filename: extension
// stripped, separators spaced, whitespace collapsed.
func TitleFromPath(path string) string {
	base := strings.TrimSpace(filepath.Base(path))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", ".", " ").Replace(base)
	fields := strings.Fields(base)
	if len(fields) == 0 {
		return "Unknown"
	}
	return strings.Join(fields, " ")
}
