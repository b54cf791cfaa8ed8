package checklist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestVerifyProducesVerifiedStatusWhenAllChecksPass(t *testing.T) {
	v := newVerifier(t, nil)
	os.WriteFile(filepath.Join(v.ProjectRoot, "README.md"), []byte("hi"), 0644)
	cl := Checklist{Items: []Item{
		{ID: "i1", Title: "has readme", Priority: PriorityMajor, Verification: []Verification{
			{Type: CheckFileExists, Path: "README.md"},
		}},
	}}
	updated, summary := v.Verify(context.Background(), cl, time.Now())
	if updated.Items[0].Status != StatusVerified {
		t.Fatalf("expected verified, got %q", updated.Items[0].Status)
	}
	if updated.Items[0].VerifiedAt == nil {
		t.Fatal("expected VerifiedAt to be set")
	}
	if summary.Results[0].Status != StatusVerified {
		t.Fatalf("expected summary status verified, got %q", summary.Results[0].Status)
	}
}

func TestVerifyProducesFailingStatusOnExplicitFail(t *testing.T) {
	v := newVerifier(t, nil)
	cl := Checklist{Items: []Item{
		{ID: "i1", Verification: []Verification{
			{Type: CheckFileExists, Path: "missing.txt"},
		}},
	}}
	updated, _ := v.Verify(context.Background(), cl, time.Now())
	if updated.Items[0].Status != StatusFailing {
		t.Fatalf("expected failing, got %q", updated.Items[0].Status)
	}
}

func TestVerifyProducesPendingWhenNoExplicitFailButSomePending(t *testing.T) {
	v := newVerifier(t, nil)
	os.WriteFile(filepath.Join(v.ProjectRoot, "README.md"), []byte("hi"), 0644)
	cl := Checklist{Items: []Item{
		{ID: "i1", Verification: []Verification{
			{Type: CheckFileExists, Path: "README.md"},
			{Type: CheckHTTP, Path: "/health", ExpectedStatus: 200}, // no running-app state => pending
		}},
	}}
	updated, _ := v.Verify(context.Background(), cl, time.Now())
	if updated.Items[0].Status != StatusPending {
		t.Fatalf("expected pending, got %q", updated.Items[0].Status)
	}
	if updated.Items[0].VerifiedAt != nil {
		t.Fatal("expected VerifiedAt unset for a pending item")
	}
}

func TestAllVerifiedRequiresNonEmptyAndAllVerified(t *testing.T) {
	if AllVerified(Checklist{}) {
		t.Fatal("empty checklist should not report all-verified")
	}
	cl := Checklist{Items: []Item{{ID: "a", Status: StatusVerified}, {ID: "b", Status: StatusPending}}}
	if AllVerified(cl) {
		t.Fatal("expected false when an item is still pending")
	}
	cl.Items[1].Status = StatusVerified
	if !AllVerified(cl) {
		t.Fatal("expected true once every item is verified")
	}
}

func TestSaveAndLoadChecklistRoundTrips(t *testing.T) {
	dir := t.TempDir()
	checklistPath := filepath.Join(dir, "checklist.json")
	resultsPath := filepath.Join(dir, "verification-results.json")

	cl := Checklist{Items: []Item{{ID: "i1", Title: "x", Status: StatusVerified}}}
	summary := Summary{RunAt: time.Now(), Results: []ItemResult{{ItemID: "i1", Status: StatusVerified}}}

	if err := SaveResults(checklistPath, resultsPath, cl, summary); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadChecklist(checklistPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].ID != "i1" {
		t.Fatalf("expected round-tripped checklist, got %+v", loaded)
	}
}

func TestLoadChecklistMissingFileIsNotError(t *testing.T) {
	loaded, err := LoadChecklist(filepath.Join(t.TempDir(), "nonexistent.json"))
	if err != nil {
		t.Fatalf("expected missing file to be treated as empty, got %v", err)
	}
	if len(loaded.Items) != 0 {
		t.Fatalf("expected empty checklist, got %+v", loaded)
	}
}
