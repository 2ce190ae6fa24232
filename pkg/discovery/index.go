// Package discovery implements the hybrid tool/skill search index (C5):
// lexical (BM25-ish) search and dense-vector k-NN search over bleve,
// fused into a single hybrid score, grounded on the teacher pack's bleve
// wrapper (smart-mcp-proxy-mcpproxy-go/internal/index/bleve.go) and
// generalized from "tools only" to tools-and-skills.
package discovery

import (
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/pkg/errors"

	"github.com/mcpgateway/registry/pkg/log"
)

// Index is the C5 hybrid search index. A single Index instance serves both
// tool and skill documents; EntityType distinguishes them.
type Index struct {
	index    bleve.Index
	embedder Embedder
	weights  Weights
}

// NewIndex opens (or creates) a bleve index at path.
func NewIndex(path string, embedder Embedder, weights Weights) (*Index, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		idx, err = createIndexMapping(path)
		if err != nil {
			return nil, errors.Wrap(err, "creating discovery index")
		}
		log.Infof("discovery: created new index at %s", path)
	} else {
		log.Infof("discovery: opened existing index at %s", path)
	}
	if embedder == nil {
		embedder = HashEmbedder{}
	}
	if weights.BM25 == 0 && weights.KNN == 0 {
		weights = DefaultWeights()
	}
	return &Index{index: idx, embedder: embedder, weights: weights}, nil
}

func createIndexMapping(path string) (bleve.Index, error) {
	keywordField := func() *bleve.TextFieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		f.Index = true
		return f
	}

	textField := bleve.NewTextFieldMapping()
	textField.Store = true
	textField.Index = true

	enabledField := bleve.NewBooleanFieldMapping()
	enabledField.Store = true
	enabledField.Index = true

	vectorField := bleve.NewVectorFieldMapping()
	vectorField.Dims = EmbeddingDim
	vectorField.Similarity = "dot_product"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("entity_id", keywordField())
	docMapping.AddFieldMappingsAt("entity_type", keywordField())
	docMapping.AddFieldMappingsAt("server_path", keywordField())
	docMapping.AddFieldMappingsAt("text", textField)
	docMapping.AddFieldMappingsAt("enabled", enabledField)
	docMapping.AddFieldMappingsAt("embedding", vectorField)

	m := bleve.NewIndexMapping()
	m.AddDocumentMapping("doc", docMapping)
	m.DefaultMapping = docMapping
	return bleve.New(path, m)
}

// Close closes the underlying bleve index.
func (ix *Index) Close() error {
	return ix.index.Close()
}

// IndexDocument indexes (or re-indexes) a single document, computing its
// embedding if the caller left it nil.
func (ix *Index) IndexDocument(doc Document) error {
	if doc.Embedding == nil {
		doc.Embedding = ix.embedder.Embed(doc.Text)
	}
	if err := ix.index.Index(doc.EntityID, doc); err != nil {
		return errors.Wrapf(err, "indexing document %s", doc.EntityID)
	}
	return nil
}

// BatchIndex indexes many documents in one bleve batch, for full rebuilds
// and bulk server registration.
func (ix *Index) BatchIndex(docs []Document) error {
	batch := ix.index.NewBatch()
	for _, doc := range docs {
		if doc.Embedding == nil {
			doc.Embedding = ix.embedder.Embed(doc.Text)
		}
		if err := batch.Index(doc.EntityID, doc); err != nil {
			return errors.Wrapf(err, "batching document %s", doc.EntityID)
		}
	}
	return ix.index.Batch(batch)
}

// SetServerEnabled marks every document belonging to serverPath as
// enabled/disabled without deleting them, per §4.5 build-time: "toggling a
// server off marks its tool docs enabled=false rather than deleting them."
func (ix *Index) SetServerEnabled(serverPath string, enabled bool) error {
	docs, err := ix.documentsForServer(serverPath)
	if err != nil {
		return err
	}
	batch := ix.index.NewBatch()
	for _, d := range docs {
		d.Enabled = enabled
		d.Embedding = ix.embedder.Embed(d.Text)
		if err := batch.Index(d.EntityID, d); err != nil {
			return errors.Wrapf(err, "re-indexing %s", d.EntityID)
		}
	}
	return ix.index.Batch(batch)
}

// DeleteServer removes every document for serverPath (used on server
// delete, as opposed to toggle).
func (ix *Index) DeleteServer(serverPath string) error {
	docs, err := ix.documentsForServer(serverPath)
	if err != nil {
		return err
	}
	batch := ix.index.NewBatch()
	for _, d := range docs {
		batch.Delete(d.EntityID)
	}
	return ix.index.Batch(batch)
}

func (ix *Index) documentsForServer(serverPath string) ([]Document, error) {
	query := bleve.NewTermQuery(serverPath)
	query.SetField("server_path")
	req := bleve.NewSearchRequest(query)
	req.Size = 100000
	req.Fields = []string{"entity_id", "entity_type", "text", "server_path", "enabled"}

	result, err := ix.index.Search(req)
	if err != nil {
		return nil, errors.Wrapf(err, "listing documents for server %s", serverPath)
	}
	out := make([]Document, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, docFromFields(hit.ID, hit.Fields))
	}
	return out, nil
}

func docFromFields(id string, fields map[string]interface{}) Document {
	str := func(k string) string {
		v, _ := fields[k].(string)
		return v
	}
	enabled, _ := fields["enabled"].(bool)
	return Document{
		EntityID:   id,
		EntityType: EntityType(str("entity_type")),
		Text:       str("text"),
		ServerPath: str("server_path"),
		Enabled:    enabled,
	}
}

// DocCount reports the number of documents currently indexed.
func (ix *Index) DocCount() (uint64, error) {
	return ix.index.DocCount()
}

type scoredDoc struct {
	id    string
	score float64
}

// Search executes the §4.5 query-time algorithm: lexical + vector search,
// per-side min-max normalization, weighted fusion, enabled/visibility
// filtering, grouping by server_path, and top_k_services/top_n_tools
// truncation. On vector-search failure it degrades to lexical-only and
// sets SearchResult.Degraded.
func (ix *Index) Search(q Query) (SearchResult, error) {
	if q.TopKServices <= 0 {
		q.TopKServices = 5
	}
	if q.TopNTools <= 0 {
		q.TopNTools = 5
	}

	lex, err := ix.lexicalScores(q.Text)
	if err != nil {
		return SearchResult{}, errors.Wrap(err, "lexical search")
	}

	vec, vecErr := ix.vectorScores(q.Text)
	degraded := vecErr != nil
	if degraded {
		log.Warnf("discovery: vector search unavailable, degrading to lexical-only: %v", vecErr)
	}

	fused := fuse(lex, vec, ix.weights, degraded)
	return ix.groupResults(fused, vec, q, degraded)
}

func (ix *Index) lexicalScores(text string) (map[string]float64, error) {
	query := bleve.NewMatchQuery(text)
	req := bleve.NewSearchRequest(query)
	req.Size = 10000

	result, err := ix.index.Search(req)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(result.Hits))
	for _, hit := range result.Hits {
		out[hit.ID] = hit.Score
	}
	return out, nil
}

func (ix *Index) vectorScores(text string) (map[string]float64, error) {
	vector := ix.embedder.Embed(text)
	query := bleve.NewMatchNoneQuery()
	req := bleve.NewSearchRequest(query)
	req.AddKNN("embedding", vector, 10000, 1.0)
	req.Size = 10000

	result, err := ix.index.Search(req)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(result.Hits))
	for _, hit := range result.Hits {
		out[hit.ID] = hit.Score
	}
	return out, nil
}

// fuse performs min-max normalization of each side independently and a
// weighted sum, per §4.5 step 4; when degraded, the vector side is simply
// absent from the union.
func fuse(lex, vec map[string]float64, w Weights, degraded bool) map[string]float64 {
	lexNorm := minMaxNormalize(lex)
	vecNorm := minMaxNormalize(vec)

	ids := make(map[string]bool, len(lex)+len(vec))
	for id := range lex {
		ids[id] = true
	}
	for id := range vec {
		ids[id] = true
	}

	out := make(map[string]float64, len(ids))
	for id := range ids {
		score := w.BM25 * lexNorm[id]
		if !degraded {
			score += w.KNN * vecNorm[id]
		}
		out[id] = score
	}
	return out
}

func minMaxNormalize(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	min, max := scoreRange(scores)
	if max == min {
		for id := range scores {
			out[id] = 1
		}
		return out
	}
	for id, s := range scores {
		out[id] = (s - min) / (max - min)
	}
	return out
}

func scoreRange(scores map[string]float64) (min, max float64) {
	first := true
	for _, s := range scores {
		if first {
			min, max = s, s
			first = false
			continue
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}

// groupResults loads document metadata for every scored ID, drops
// disabled/not-visible documents, groups by server_path, and truncates per
// §4.5 step 6. Tie-break: higher fused score wins; ties fall back to the
// higher raw (un-normalized) vector score, then lexicographic entity_id
// (ties in the fused score are rare but possible after normalization
// collapses a singleton range to 1).
func (ix *Index) groupResults(fused, vec map[string]float64, q Query, degraded bool) (SearchResult, error) {
	ids := make([]string, 0, len(fused))
	for id := range fused {
		ids = append(ids, id)
	}
	metas, err := ix.loadMetas(ids)
	if err != nil {
		return SearchResult{}, err
	}

	type scored struct {
		meta     Document
		score    float64
		vecScore float64
	}
	byServer := make(map[string][]scored)
	for _, id := range ids {
		meta, ok := metas[id]
		if !ok || !meta.Enabled {
			continue
		}
		if q.VisibleServer != nil && !q.VisibleServer(meta.ServerPath) {
			continue
		}
		byServer[meta.ServerPath] = append(byServer[meta.ServerPath], scored{meta: meta, score: fused[id], vecScore: vec[id]})
	}

	services := make([]ServiceResult, 0, len(byServer))
	for serverPath, docs := range byServer {
		sort.Slice(docs, func(i, j int) bool {
			if docs[i].score != docs[j].score {
				return docs[i].score > docs[j].score
			}
			if docs[i].vecScore != docs[j].vecScore {
				return docs[i].vecScore > docs[j].vecScore
			}
			return docs[i].meta.EntityID < docs[j].meta.EntityID
		})
		best := docs[0].score
		n := q.TopNTools
		if n > len(docs) {
			n = len(docs)
		}
		tools := make([]ToolHit, 0, n)
		for _, d := range docs[:n] {
			tools = append(tools, ToolHit{Name: d.meta.EntityID, Description: d.meta.Text, Score: d.score})
		}
		services = append(services, ServiceResult{ServerPath: serverPath, BestScore: best, Tools: tools})
	}

	sort.Slice(services, func(i, j int) bool {
		if services[i].BestScore != services[j].BestScore {
			return services[i].BestScore > services[j].BestScore
		}
		return services[i].ServerPath < services[j].ServerPath
	})
	if len(services) > q.TopKServices {
		services = services[:q.TopKServices]
	}

	return SearchResult{Services: services, Degraded: degraded}, nil
}

func (ix *Index) loadMetas(ids []string) (map[string]Document, error) {
	out := make(map[string]Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := bleve.NewDocIDQuery(ids)
	req := bleve.NewSearchRequest(query)
	req.Size = len(ids)
	req.Fields = []string{"entity_id", "entity_type", "text", "server_path", "enabled"}

	result, err := ix.index.Search(req)
	if err != nil {
		return nil, errors.Wrap(err, "loading document metadata")
	}
	for _, hit := range result.Hits {
		out[hit.ID] = docFromFields(hit.ID, hit.Fields)
	}
	return out, nil
}
