package discovery

// EntityType distinguishes a tool document from a skill document in the
// shared index.
type EntityType string

const (
	EntityTool  EntityType = "tool"
	EntitySkill EntityType = "skill"
)

// Document is one indexed unit: a tool belonging to a server, or a skill
// belonging to an agent (§4.5).
type Document struct {
	EntityID   string     `json:"entity_id"`
	EntityType EntityType `json:"entity_type"`
	Text       string     `json:"text"`
	Embedding  []float32  `json:"embedding"`
	ServerPath string     `json:"server_path"`
	Enabled    bool       `json:"enabled"`
}

// ToolHit is one tool returned within a service's search result group.
type ToolHit struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
}

// ServiceResult groups the best-scoring tools/skills for one server_path.
type ServiceResult struct {
	ServerPath string    `json:"server_path"`
	BestScore  float64   `json:"best_score"`
	Tools      []ToolHit `json:"tools"`
}

// SearchResult is the top-level response of a Search call.
type SearchResult struct {
	Services []ServiceResult `json:"services"`
	Degraded bool            `json:"degraded"`
}

// Query carries the natural-language search input and result shaping
// parameters (§4.5 query-time).
type Query struct {
	Text          string
	TopKServices  int
	TopNTools     int
	VisibleServer func(serverPath string) bool // nil means "no filtering"
}

// Weights configures the hybrid-score fusion (§4.5 step 4, default 0.4/0.6).
type Weights struct {
	BM25 float64
	KNN  float64
}

// DefaultWeights is the spec default.
func DefaultWeights() Weights { return Weights{BM25: 0.4, KNN: 0.6} }
