package vectorindex

import (
	"math"
	"path/filepath"
	"testing"
)

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	got := CosineSimilarity(v, v)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected similarity 1.0, got %v", got)
	}
}

func TestCosineSimilarityOrthogonalIsZero(t *testing.T) {
	got := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if got != 0 {
		t.Errorf("expected similarity 0, got %v", got)
	}
}

func TestCosineSimilarityMismatchedLengthIsZero(t *testing.T) {
	got := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	if got != 0 {
		t.Errorf("expected 0 for mismatched lengths, got %v", got)
	}
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	idx := New(3)
	if err := idx.Add("a", []float32{1, 2}, nil); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	idx := New(2)
	if err := idx.Add("a", []float32{1, 0}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Search([]float32{1, 2, 3}, 1, nil); err == nil {
		t.Fatal("expected dimension mismatch error on search")
	}
}

func TestSearchRanksByDescendingSimilarity(t *testing.T) {
	idx := New(2)
	idx.Add("close", []float32{1, 0}, nil)
	idx.Add("far", []float32{0, 1}, nil)
	idx.Add("identical", []float32{2, 0}, nil)

	results, err := idx.Search([]float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected topK=2 results, got %d", len(results))
	}
	if results[0].Score < results[1].Score {
		t.Errorf("expected descending score order, got %v then %v", results[0].Score, results[1].Score)
	}
	if results[0].ID != "identical" && results[1].ID != "identical" {
		t.Errorf("expected the identical-direction vector among top matches: %+v", results)
	}
}

func TestSearchFiltersByMetadata(t *testing.T) {
	idx := New(2)
	idx.Add("ep1", []float32{1, 0}, map[string]string{"tier": "episodic"})
	idx.Add("pat1", []float32{1, 0}, map[string]string{"tier": "semantic"})

	results, err := idx.Search([]float32{1, 0}, 10, func(id string, meta map[string]string) bool {
		return meta["tier"] == "semantic"
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "pat1" {
		t.Fatalf("expected only semantic entries, got %+v", results)
	}
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	idx := New(3)
	idx.Add("a", []float32{1, 2, 3}, map[string]string{"k": "v"})
	idx.Add("b", []float32{4, 5, 6}, nil)

	if err := idx.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	reopened, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", reopened.Len())
	}
	if reopened.Dimension() != 3 {
		t.Fatalf("expected dimension 3, got %d", reopened.Dimension())
	}

	results, err := reopened.Search([]float32{1, 2, 3}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("expected exact match for id a, got %+v", results)
	}
	if results[0].Meta["k"] != "v" {
		t.Errorf("expected metadata to round-trip, got %+v", results[0].Meta)
	}
}

func TestRemoveDeletesEntry(t *testing.T) {
	idx := New(1)
	idx.Add("a", []float32{1}, nil)
	idx.Add("b", []float32{2}, nil)
	idx.Remove("a")
	if idx.Len() != 1 {
		t.Fatalf("expected 1 entry after remove, got %d", idx.Len())
	}
	results, err := idx.Search([]float32{2}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Fatalf("expected only b to remain, got %+v", results)
	}
}

func TestUpdateReplacesVector(t *testing.T) {
	idx := New(2)
	idx.Add("a", []float32{1, 0}, nil)
	if err := idx.Update("a", []float32{0, 1}, map[string]string{"updated": "true"}); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected update to upsert in place, got %d entries", idx.Len())
	}
	results, err := idx.Search([]float32{0, 1}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Score < 0.99 {
		t.Errorf("expected updated vector to match query closely, got score %v", results[0].Score)
	}
}
