package hashing_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"hubward/internal/hashing"
)

func TestHashFileMatchesReferenceDigest(t *testing.T) {
	dir := t.TempDir()
	// Larger than one chunk so the streaming path is exercised.
	payload := bytes.Repeat([]byte("hubward"), 20_000)
	path := filepath.Join(dir, "sample.bin")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}

	digest, err := hashing.HashFile(context.Background(), path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	expected := sha256.Sum256(payload)
	if digest.Hex != hex.EncodeToString(expected[:]) {
		t.Fatalf("digest mismatch: %s", digest.Hex)
	}
	if digest.ByteCount != int64(len(payload)) {
		t.Fatalf("expected %d bytes, got %d", len(payload), digest.ByteCount)
	}
	if digest.FilePath != path {
		t.Fatalf("unexpected path %q", digest.FilePath)
	}
}

func TestHashFileEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write empty: %v", err)
	}

	digest, err := hashing.HashFile(context.Background(), path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	expected := sha256.Sum256(nil)
	if digest.Hex != hex.EncodeToString(expected[:]) {
		t.Fatalf("digest mismatch for empty file: %s", digest.Hex)
	}
}

func TestHashFileHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 1024), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := hashing.HashFile(ctx, path); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestHashFileMissingFile(t *testing.T) {
	if _, err := hashing.HashFile(context.Background(), filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
