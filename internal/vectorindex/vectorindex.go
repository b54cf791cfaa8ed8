// Package vectorindex implements the flat cosine-similarity vector index
// (C3) used by the retrieval engine to rank memory entities by semantic
// closeness to a query embedding. Vectors are stored L2-normalised for
// search; callers' original embeddings are preserved unmodified.
package vectorindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/loki-swarm/core/internal/swarmio"
)

// Filter narrows a Search to entries whose metadata satisfies it. A nil
// Filter matches everything.
type Filter func(id string, meta map[string]string) bool

// Scored is one search hit.
type Scored struct {
	ID       string
	Score    float64
	Meta     map[string]string
	Vector   []float32 // the original, non-normalised embedding
}

// sidecar is the JSON companion persisted alongside the dense matrix file;
// it carries everything needed to reconstruct the Index except the raw
// vector bytes themselves.
type sidecar struct {
	Dimension int                          `json:"dimension"`
	IDs       []string                     `json:"ids"`
	Metadata  map[string]map[string]string `json:"metadata"`
}

// Index is a fixed-dimension, in-memory flat vector index with JSON+binary
// persistence. Not safe to share across namespaces: the retrieval engine
// builds one Index per namespace it searches.
type Index struct {
	mu sync.RWMutex

	dim        int
	ids        []string
	normalized [][]float32 // L2-normalised, same order as ids
	originals  map[string][]float32
	metadata   map[string]map[string]string
	positions  map[string]int // id -> index into ids/normalized
}

// New returns an empty index fixed at the given embedding dimension.
func New(dimension int) *Index {
	return &Index{
		dim:       dimension,
		originals: map[string][]float32{},
		metadata:  map[string]map[string]string{},
		positions: map[string]int{},
	}
}

// Dimension reports the fixed embedding width this index accepts.
func (idx *Index) Dimension() int { return idx.dim }

// Len reports how many vectors the index currently holds.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

var errDimensionMismatch = fmt.Errorf("vectorindex: vector dimension does not match index")

// Add inserts or replaces the vector stored under id. It rejects vectors
// whose length does not match the index's fixed dimension.
func (idx *Index) Add(id string, vec []float32, meta map[string]string) error {
	if len(vec) != idx.dim {
		return fmt.Errorf("%w: got %d want %d", errDimensionMismatch, len(vec), idx.dim)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.insertLocked(id, vec, meta)
	return nil
}

// AddBatch adds multiple vectors, stopping at the first dimension
// mismatch and returning it with the offending id.
func (idx *Index) AddBatch(ids []string, vecs [][]float32, metas []map[string]string) error {
	if len(ids) != len(vecs) {
		return fmt.Errorf("vectorindex: ids/vecs length mismatch: %d vs %d", len(ids), len(vecs))
	}
	for i, v := range vecs {
		if len(v) != idx.dim {
			return fmt.Errorf("%w: id %q got %d want %d", errDimensionMismatch, ids[i], len(v), idx.dim)
		}
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i := range ids {
		var meta map[string]string
		if metas != nil {
			meta = metas[i]
		}
		idx.insertLocked(ids[i], vecs[i], meta)
	}
	return nil
}

// Update replaces the vector and/or metadata for an existing id; behaves
// exactly like Add (upsert) but documents caller intent.
func (idx *Index) Update(id string, vec []float32, meta map[string]string) error {
	return idx.Add(id, vec, meta)
}

// insertLocked must be called with mu held.
func (idx *Index) insertLocked(id string, vec []float32, meta map[string]string) {
	original := append([]float32(nil), vec...)
	normalized := l2Normalize(vec)

	if pos, exists := idx.positions[id]; exists {
		idx.normalized[pos] = normalized
		idx.originals[id] = original
		idx.metadata[id] = meta
		return
	}
	idx.positions[id] = len(idx.ids)
	idx.ids = append(idx.ids, id)
	idx.normalized = append(idx.normalized, normalized)
	idx.originals[id] = original
	idx.metadata[id] = meta
}

// Remove deletes an entry by id, a no-op if absent. Removal swaps the last
// entry into the removed slot to keep storage dense.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pos, exists := idx.positions[id]
	if !exists {
		return
	}
	last := len(idx.ids) - 1
	idx.ids[pos] = idx.ids[last]
	idx.normalized[pos] = idx.normalized[last]
	idx.positions[idx.ids[pos]] = pos

	idx.ids = idx.ids[:last]
	idx.normalized = idx.normalized[:last]
	delete(idx.positions, id)
	delete(idx.originals, id)
	delete(idx.metadata, id)
}

// Search returns the k entries whose cosine similarity to query is
// highest, optionally narrowed by filter. query need not be pre-normalised.
func (idx *Index) Search(query []float32, k int, filter Filter) ([]Scored, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: got %d want %d", errDimensionMismatch, len(query), idx.dim)
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	normQuery := l2Normalize(query)
	out := make([]Scored, 0, len(idx.ids))
	for i, id := range idx.ids {
		meta := idx.metadata[id]
		if filter != nil && !filter(id, meta) {
			continue
		}
		score := dot(normQuery, idx.normalized[i])
		out = append(out, Scored{ID: id, Score: score, Meta: meta, Vector: idx.originals[id]})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out, nil
}

// Save persists the index as a JSON sidecar (path) plus a binary dense
// matrix file (path + ".vec") of the row-major float32 original
// embeddings; Load normalises them again as it inserts them.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	sc := sidecar{Dimension: idx.dim, IDs: append([]string(nil), idx.ids...), Metadata: map[string]map[string]string{}}
	for id, m := range idx.metadata {
		sc.Metadata[id] = m
	}

	var buf bytes.Buffer
	for _, id := range idx.ids {
		for _, v := range idx.originals[id] {
			binary.Write(&buf, binary.LittleEndian, v)
		}
	}

	return swarmio.WithExclusiveLock(path, func() error {
		if err := swarmio.AtomicWriteJSON(path, sc); err != nil {
			return err
		}
		return atomicWriteFile(path+".vec", buf.Bytes())
	})
}

// Load reconstructs an index previously written by Save.
func Load(path string) (*Index, error) {
	var sc sidecar
	var ok bool
	err := swarmio.WithSharedLock(path, func() error {
		var rerr error
		ok, rerr = swarmio.ReadJSON(path, &sc)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	idx := New(sc.Dimension)
	if !ok {
		return idx, nil
	}

	data, err := os.ReadFile(path + ".vec")
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, err
	}

	floatsPerID := sc.Dimension
	stride := floatsPerID * 4
	for i, id := range sc.IDs {
		start := i * stride
		end := start + stride
		if end > len(data) {
			break
		}
		vec := make([]float32, floatsPerID)
		r := bytes.NewReader(data[start:end])
		for j := 0; j < floatsPerID; j++ {
			binary.Read(r, binary.LittleEndian, &vec[j])
		}
		idx.insertLocked(id, vec, sc.Metadata[id])
	}
	return idx, nil
}

func atomicWriteFile(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(dirOf(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return append([]float32(nil), v...)
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 if the
// vectors differ in length or either is the zero vector. Exposed for
// callers that compare ad hoc pairs without building a full Index. The
// norms are taken in float64, so no float32 rounding enters the result.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var ab, aa, bb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		ab += x * y
		aa += x * x
		bb += y * y
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return ab / (math.Sqrt(aa) * math.Sqrt(bb))
}
