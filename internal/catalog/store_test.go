package catalog_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"hubward/internal/catalog"
	"hubward/internal/testsupport"
)

func TestInsertAssetRejectsDuplicateHashSilently(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	edition := mustChain(t, store, "Dune", catalog.MediaEpub)

	first := &catalog.MediaAsset{EditionID: edition.ID, ContentHash: "ABCDEF01", FilePathRoot: "/inbox/dune.epub"}
	result, err := store.InsertAsset(ctx, first)
	if err != nil {
		t.Fatalf("InsertAsset failed: %v", err)
	}
	if result != catalog.Inserted {
		t.Fatalf("expected Inserted, got %v", result)
	}
	if first.ContentHash != "abcdef01" {
		t.Fatalf("expected lowercased hash, got %q", first.ContentHash)
	}

	second := &catalog.MediaAsset{EditionID: edition.ID, ContentHash: "abcdef01", FilePathRoot: "/inbox/dune-copy.epub"}
	result, err = store.InsertAsset(ctx, second)
	if err != nil {
		t.Fatalf("duplicate InsertAsset errored: %v", err)
	}
	if result != catalog.DuplicateHash {
		t.Fatalf("expected DuplicateHash, got %v", result)
	}

	count, err := store.CountAssets(ctx)
	if err != nil {
		t.Fatalf("CountAssets failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one asset row, got %d", count)
	}

	found, err := store.FindAssetByHash(ctx, "ABCDEF01")
	if err != nil {
		t.Fatalf("FindAssetByHash failed: %v", err)
	}
	if found == nil || found.ID != first.ID {
		t.Fatalf("expected original asset, got %#v", found)
	}
}

func TestClaimsAreAppendOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	entityID := "entity-1"
	for i := 0; i < 3; i++ {
		claim := &catalog.Claim{
			EntityID:   entityID,
			ProviderID: "filesystem",
			Key:        "title",
			Value:      "Dune",
			Confidence: 1.0,
		}
		if err := store.AppendClaim(ctx, claim); err != nil {
			t.Fatalf("AppendClaim failed: %v", err)
		}
	}

	claims, err := store.ListClaims(ctx, entityID)
	if err != nil {
		t.Fatalf("ListClaims failed: %v", err)
	}
	if len(claims) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(claims))
	}

	total, err := store.CountClaims(ctx)
	if err != nil {
		t.Fatalf("CountClaims failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 claim rows, got %d", total)
	}
}

func TestUpsertCanonicalReplacesPriorRow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.UpsertCanonical(ctx, "e1", "title", "Dune", time.Now()); err != nil {
		t.Fatalf("UpsertCanonical failed: %v", err)
	}
	if err := store.UpsertCanonical(ctx, "e1", "title", "Dune (Special Edition)", time.Now()); err != nil {
		t.Fatalf("second UpsertCanonical failed: %v", err)
	}

	values, err := store.CanonicalValuesFor(ctx, "e1")
	if err != nil {
		t.Fatalf("CanonicalValuesFor failed: %v", err)
	}
	if len(values) != 1 || values["title"] != "Dune (Special Edition)" {
		t.Fatalf("unexpected canonical values: %#v", values)
	}
}

func TestListHubsLoadsWorksAndCanonicalValues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	hub, err := store.CreateHub(ctx, "Dune", "")
	if err != nil {
		t.Fatalf("CreateHub failed: %v", err)
	}
	work, err := store.CreateWork(ctx, hub.ID, catalog.MediaEpub, nil)
	if err != nil {
		t.Fatalf("CreateWork failed: %v", err)
	}
	if err := store.UpsertCanonical(ctx, work.ID, "title", "Dune", time.Now()); err != nil {
		t.Fatalf("UpsertCanonical failed: %v", err)
	}
	if _, err := store.CreateHub(ctx, "Empty Hub", ""); err != nil {
		t.Fatalf("CreateHub failed: %v", err)
	}

	hubs, err := store.ListHubs(ctx)
	if err != nil {
		t.Fatalf("ListHubs failed: %v", err)
	}
	if len(hubs) != 2 {
		t.Fatalf("expected 2 hubs, got %d", len(hubs))
	}
	var dune *catalog.Hub
	for _, h := range hubs {
		if h.DisplayName == "Dune" {
			dune = h
		}
	}
	if dune == nil || len(dune.Works) != 1 {
		t.Fatalf("expected Dune hub with one work, got %#v", dune)
	}
	values := dune.Works[0].CanonicalValues
	if len(values) != 1 || values[0].Value != "Dune" {
		t.Fatalf("unexpected canonical values: %#v", values)
	}
}

func TestFindHubByDisplayNameIsCaseInsensitive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.CreateHub(ctx, "Dune", ""); err != nil {
		t.Fatalf("CreateHub failed: %v", err)
	}
	hub, err := store.FindHubByDisplayName(ctx, "dUnE")
	if err != nil {
		t.Fatalf("FindHubByDisplayName failed: %v", err)
	}
	if hub == nil || hub.DisplayName != "Dune" {
		t.Fatalf("expected case-insensitive match, got %#v", hub)
	}
}

func TestDeleteHubOrphansWorks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	hub, err := store.CreateHub(ctx, "Dune", "")
	if err != nil {
		t.Fatalf("CreateHub failed: %v", err)
	}
	work, err := store.CreateWork(ctx, hub.ID, catalog.MediaEpub, nil)
	if err != nil {
		t.Fatalf("CreateWork failed: %v", err)
	}

	if err := store.DeleteHub(ctx, hub.ID); err != nil {
		t.Fatalf("DeleteHub failed: %v", err)
	}
	orphan, err := store.GetWork(ctx, work.ID)
	if err != nil {
		t.Fatalf("GetWork failed: %v", err)
	}
	if orphan == nil {
		t.Fatal("expected work row to survive hub deletion")
	}
	if orphan.HubID != "" {
		t.Fatalf("expected hub_id nulled, got %q", orphan.HubID)
	}
}

func TestPruneLogKeepsNewestEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := store.LogEvent(ctx, "TEST_EVENT", "asset", "a"); err != nil {
			t.Fatalf("LogEvent failed: %v", err)
		}
	}
	removed, err := store.PruneLog(ctx, 4)
	if err != nil {
		t.Fatalf("PruneLog failed: %v", err)
	}
	if removed != 6 {
		t.Fatalf("expected 6 rows pruned, got %d", removed)
	}
	count, err := store.CountJournal(ctx)
	if err != nil {
		t.Fatalf("CountJournal failed: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 journal rows, got %d", count)
	}

	entries, err := store.RecentJournal(ctx, 10)
	if err != nil {
		t.Fatalf("RecentJournal failed: %v", err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID > entries[i-1].ID {
			t.Fatal("expected newest-first ordering")
		}
	}
}

func TestSearchHubsEscapesLikeWildcards(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.CreateHub(ctx, "100% Wolf", ""); err != nil {
		t.Fatalf("CreateHub failed: %v", err)
	}
	if _, err := store.CreateHub(ctx, "Wolf Hall", ""); err != nil {
		t.Fatalf("CreateHub failed: %v", err)
	}

	hubs, err := store.SearchHubs(ctx, "100%", 20)
	if err != nil {
		t.Fatalf("SearchHubs failed: %v", err)
	}
	if len(hubs) != 1 || !strings.HasPrefix(hubs[0].DisplayName, "100%") {
		t.Fatalf("unexpected search results: %#v", hubs)
	}
}

func mustChain(t *testing.T, store *catalog.Store, title string, mediaType catalog.MediaType) *catalog.Edition {
	t.Helper()
	ctx := context.Background()
	hub, err := store.CreateHub(ctx, title, "")
	if err != nil {
		t.Fatalf("CreateHub failed: %v", err)
	}
	work, err := store.CreateWork(ctx, hub.ID, mediaType, nil)
	if err != nil {
		t.Fatalf("CreateWork failed: %v", err)
	}
	edition, err := store.CreateEdition(ctx, work.ID, "")
	if err != nil {
		t.Fatalf("CreateEdition failed: %v", err)
	}
	return edition
}
