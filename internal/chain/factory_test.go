package chain_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"hubward/internal/catalog"
	"hubward/internal/chain"
	"hubward/internal/logging"
	"hubward/internal/testsupport"
)

func TestEnsureCreatesFullChain(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	factory := chain.NewFactory(store, logging.NewNop())
	ctx := context.Background()

	editionID := uuid.NewString()
	built, err := factory.Ensure(ctx, editionID, catalog.MediaEpub, map[string]string{
		"title":        "Dune",
		"series_index": "1",
		"format":       "EPUB",
	})
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if built.HubReused {
		t.Fatal("first chain must create a fresh hub")
	}
	if built.Hub.DisplayName != "Dune" {
		t.Fatalf("unexpected hub name %q", built.Hub.DisplayName)
	}
	if built.Work.SequenceIndex == nil || *built.Work.SequenceIndex != 1 {
		t.Fatalf("expected sequence index 1, got %#v", built.Work.SequenceIndex)
	}
	if built.Edition.ID != editionID {
		t.Fatalf("expected pre-assigned edition id %s, got %s", editionID, built.Edition.ID)
	}
	if built.Edition.FormatLabel != "EPUB" {
		t.Fatalf("unexpected format label %q", built.Edition.FormatLabel)
	}
}

func TestEnsureReusesHubCaseInsensitively(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	factory := chain.NewFactory(store, logging.NewNop())
	ctx := context.Background()

	first, err := factory.Ensure(ctx, uuid.NewString(), catalog.MediaEpub, map[string]string{"title": "Dune"})
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	second, err := factory.Ensure(ctx, uuid.NewString(), catalog.MediaAudiobook, map[string]string{"title": "DUNE"})
	if err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if !second.HubReused || second.Hub.ID != first.Hub.ID {
		t.Fatalf("expected hub reuse, got %#v vs %#v", second.Hub, first.Hub)
	}
	if second.Work.ID == first.Work.ID {
		t.Fatal("works must never be reused")
	}
}

func TestEnsureDefaultsMissingTitleToUnknown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	factory := chain.NewFactory(store, logging.NewNop())
	ctx := context.Background()

	built, err := factory.Ensure(ctx, uuid.NewString(), catalog.MediaUnknown, map[string]string{"title": "   "})
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if built.Hub.DisplayName != chain.UnknownTitle {
		t.Fatalf("expected %q hub, got %q", chain.UnknownTitle, built.Hub.DisplayName)
	}
}

func TestEnsureIgnoresUnparseableSeriesIndex(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	factory := chain.NewFactory(store, logging.NewNop())
	ctx := context.Background()

	built, err := factory.Ensure(ctx, uuid.NewString(), catalog.MediaEpub, map[string]string{
		"title":        "Dune",
		"series_index": "one",
	})
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if built.Work.SequenceIndex != nil {
		t.Fatalf("expected nil sequence index, got %v", *built.Work.SequenceIndex)
	}
}
