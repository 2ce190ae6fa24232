// Package registry defines the data model shared by the repository layer,
// the authorization engine, the discovery index, the health monitor, and
// the reverse proxy: ServerRecord, AgentRecord, and their nested types.
package registry

import "time"

// HealthStatus is the mutable health field of a ServerRecord or AgentRecord.
type HealthStatus string

const (
	HealthHealthy            HealthStatus = "healthy"
	HealthHealthyAuthExpired HealthStatus = "healthy-auth-expired"
	HealthUnhealthy          HealthStatus = "unhealthy"
	HealthUnknown            HealthStatus = "unknown"
)

// Transport is one of the MCP transports a server may support.
type Transport string

const (
	TransportStdio           Transport = "stdio"
	TransportSSE             Transport = "sse"
	TransportStreamableHTTP  Transport = "streamable-http"
)

// Visibility controls whether an AgentRecord is discoverable outside its
// owning namespace.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// TrustLevel reflects how much an agent's publisher is vetted.
type TrustLevel string

const (
	TrustCommunity TrustLevel = "community"
	TrustVerified  TrustLevel = "verified"
	TrustTrusted   TrustLevel = "trusted"
)

// Header is an ordered header-name -> value-template pair. Values may
// reference "${ENV_VAR}", resolved at call time by the reverse proxy.
type Header struct {
	Name  string `json:"name" yaml:"name" validate:"required"`
	Value string `json:"value" yaml:"value"`
}

// ToolDescriptor describes one tool exposed by an upstream MCP server.
type ToolDescriptor struct {
	Name              string         `json:"name" yaml:"name" validate:"required,min=1"`
	ParsedDescription ParsedDoc      `json:"parsed_description" yaml:"parsed_description"`
	Schema            map[string]any `json:"schema" yaml:"schema"`
}

// ParsedDoc is a tool or skill description broken into its documented parts.
type ParsedDoc struct {
	Main    string            `json:"main,omitempty" yaml:"main,omitempty"`
	Args    map[string]string `json:"args,omitempty" yaml:"args,omitempty"`
	Returns string            `json:"returns,omitempty" yaml:"returns,omitempty"`
	Raises  string            `json:"raises,omitempty" yaml:"raises,omitempty"`
}

// ResourceDescriptor describes one MCP resource exposed by an upstream server.
type ResourceDescriptor struct {
	URI         string `json:"uri" yaml:"uri" validate:"required"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	MimeType    string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
}

// Metadata carries license and packaging facts that don't affect routing.
type Metadata struct {
	License  string `json:"license,omitempty" yaml:"license,omitempty"`
	IsPython bool   `json:"is_python,omitempty" yaml:"is_python,omitempty"`
}

// ServerRecord is a registered MCP server. Path is the immutable unique key.
type ServerRecord struct {
	Path               string           `json:"path" yaml:"path" validate:"required,min=1"`
	ServerName         string           `json:"server_name" yaml:"server_name" validate:"required"`
	Description        string           `json:"description" yaml:"description"`
	ProxyPassURL       string           `json:"proxy_pass_url" yaml:"proxy_pass_url" validate:"required,url"`
	SupportedTransports []Transport     `json:"supported_transports" yaml:"supported_transports" validate:"dive,oneof=stdio sse streamable-http"`
	Tags               []string         `json:"tags,omitempty" yaml:"tags,omitempty"`
	Headers            []Header         `json:"headers,omitempty" yaml:"headers,omitempty"`
	ToolList           []ToolDescriptor `json:"tool_list,omitempty" yaml:"tool_list,omitempty" validate:"dive"`
	ResourceList       []ResourceDescriptor `json:"resource_list,omitempty" yaml:"resource_list,omitempty"`
	NumStars           float64          `json:"num_stars" yaml:"num_stars"`
	NumRatings         int              `json:"num_ratings" yaml:"num_ratings"`
	Metadata           Metadata         `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Mutable fields.
	Enabled         bool         `json:"enabled" yaml:"enabled"`
	HealthStatus    HealthStatus `json:"health_status" yaml:"health_status"`
	LastCheckedTime time.Time    `json:"last_checked_time" yaml:"last_checked_time"`

	// Revision is owned by the repository layer: it increments on every
	// Put and backs the optional if-version precondition (§4.3). Request
	// bodies never set it.
	Revision int64 `json:"revision" yaml:"revision"`
}

// Kind identifies the record's collection for namespacing and repositories.
func (ServerRecord) Kind() string { return "servers" }

// SkillDescriptor describes one capability advertised by an A2A agent card.
type SkillDescriptor struct {
	ID          string   `json:"id" yaml:"id" validate:"required"`
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// SecurityScheme mirrors an A2A agent card's declared auth scheme, kept
// opaque since the gateway never authenticates to the agent on the user's
// behalf — it is surfaced to clients as-is.
type SecurityScheme struct {
	Type   string `json:"type" yaml:"type"`
	Scheme string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
}

// AgentRecord is a registered A2A agent. Path is the immutable unique key.
type AgentRecord struct {
	Path            string           `json:"path" yaml:"path" validate:"required,min=1"`
	Name            string           `json:"name" yaml:"name" validate:"required"`
	Description     string           `json:"description" yaml:"description"`
	URL             string           `json:"url" yaml:"url" validate:"required,url"`
	Version         string           `json:"version,omitempty" yaml:"version,omitempty"`
	Skills          []SkillDescriptor `json:"skills,omitempty" yaml:"skills,omitempty" validate:"dive"`
	SecuritySchemes []SecurityScheme `json:"security_schemes,omitempty" yaml:"security_schemes,omitempty"`
	Tags            []string         `json:"tags,omitempty" yaml:"tags,omitempty"`
	Visibility      Visibility       `json:"visibility" yaml:"visibility" validate:"required,oneof=public private"`
	TrustLevel      TrustLevel       `json:"trust_level" yaml:"trust_level" validate:"required,oneof=community verified trusted"`
	NumStars        float64          `json:"num_stars" yaml:"num_stars"`
	NumRatings      int              `json:"num_ratings" yaml:"num_ratings"`

	// Mutable fields.
	Enabled         bool         `json:"enabled" yaml:"enabled"`
	HealthStatus    HealthStatus `json:"health_status" yaml:"health_status"`
	LastCheckedTime time.Time    `json:"last_checked_time" yaml:"last_checked_time"`

	// Revision is owned by the repository layer: it increments on every
	// Put and backs the optional if-version precondition (§4.3). Request
	// bodies never set it.
	Revision int64 `json:"revision" yaml:"revision"`
}

// Kind identifies the record's collection for namespacing and repositories.
func (AgentRecord) Kind() string { return "agents" }

// ApplyRating folds a new 1-5 star rating into the running average, rounded
// to one decimal place (spec Open Question #2: aggregate average).
func ApplyRating(currentAvg float64, currentCount int, stars int) (avg float64, count int) {
	total := currentAvg*float64(currentCount) + float64(stars)
	count = currentCount + 1
	avg = total / float64(count)
	return roundToOneDecimal(avg), count
}

func roundToOneDecimal(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
