package adminapi

import "github.com/mcpgateway/registry/pkg/registry"

// RegisterServerRequest is the body of POST /api/servers/register.
type RegisterServerRequest struct {
	Path                string                     `json:"path" validate:"required,min=1"`
	ServerName          string                     `json:"server_name" validate:"required"`
	Description         string                     `json:"description"`
	ProxyPassURL        string                     `json:"proxy_pass_url" validate:"required,url"`
	SupportedTransports []registry.Transport       `json:"supported_transports" validate:"dive,oneof=stdio sse streamable-http"`
	Tags                []string                   `json:"tags,omitempty"`
	Headers             []registry.Header          `json:"headers,omitempty" validate:"dive"`
	ToolList            []registry.ToolDescriptor  `json:"tool_list,omitempty" validate:"dive"`
	ResourceList        []registry.ResourceDescriptor `json:"resource_list,omitempty" validate:"dive"`
	Metadata            registry.Metadata          `json:"metadata,omitempty"`
}

func (req RegisterServerRequest) toRecord() registry.ServerRecord {
	return registry.ServerRecord{
		Path:                req.Path,
		ServerName:          req.ServerName,
		Description:         req.Description,
		ProxyPassURL:        req.ProxyPassURL,
		SupportedTransports: req.SupportedTransports,
		Tags:                req.Tags,
		Headers:             req.Headers,
		ToolList:            req.ToolList,
		ResourceList:        req.ResourceList,
		Metadata:            req.Metadata,
		Enabled:             true,
		HealthStatus:        registry.HealthUnknown,
	}
}

// EditServerRequest is the body of PUT /api/servers/{path}. Fields are a
// full replacement of the mutable descriptive fields, not a patch; Path,
// Enabled, and HealthStatus are preserved from the stored record.
type EditServerRequest struct {
	ServerName          string                     `json:"server_name" validate:"required"`
	Description         string                     `json:"description"`
	ProxyPassURL        string                     `json:"proxy_pass_url" validate:"required,url"`
	SupportedTransports []registry.Transport       `json:"supported_transports" validate:"dive,oneof=stdio sse streamable-http"`
	Tags                []string                   `json:"tags,omitempty"`
	Headers             []registry.Header          `json:"headers,omitempty" validate:"dive"`
	ToolList            []registry.ToolDescriptor  `json:"tool_list,omitempty" validate:"dive"`
	ResourceList        []registry.ResourceDescriptor `json:"resource_list,omitempty"`
	Metadata            registry.Metadata          `json:"metadata,omitempty"`
}

func (req EditServerRequest) applyTo(rec registry.ServerRecord) registry.ServerRecord {
	rec.ServerName = req.ServerName
	rec.Description = req.Description
	rec.ProxyPassURL = req.ProxyPassURL
	rec.SupportedTransports = req.SupportedTransports
	rec.Tags = req.Tags
	rec.Headers = req.Headers
	rec.ToolList = req.ToolList
	rec.ResourceList = req.ResourceList
	rec.Metadata = req.Metadata
	return rec
}

// ToggleRequest is the body of POST /api/{servers,agents}/{path}/toggle.
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// RateRequest is the body of POST /api/{kind}/{path}/rate.
type RateRequest struct {
	Rating int `json:"rating" validate:"required,min=1,max=5"`
}

// RegisterAgentRequest is the body of POST /api/agents/register.
type RegisterAgentRequest struct {
	Path            string                    `json:"path" validate:"required,min=1"`
	Name            string                    `json:"name" validate:"required"`
	Description     string                    `json:"description"`
	URL             string                    `json:"url" validate:"required,url"`
	Version         string                    `json:"version,omitempty"`
	Skills          []registry.SkillDescriptor `json:"skills,omitempty" validate:"dive"`
	SecuritySchemes []registry.SecurityScheme `json:"security_schemes,omitempty"`
	Tags            []string                  `json:"tags,omitempty"`
	Visibility      registry.Visibility       `json:"visibility" validate:"required,oneof=public private"`
	TrustLevel      registry.TrustLevel       `json:"trust_level" validate:"required,oneof=community verified trusted"`
}

func (req RegisterAgentRequest) toRecord() registry.AgentRecord {
	return registry.AgentRecord{
		Path:            req.Path,
		Name:            req.Name,
		Description:     req.Description,
		URL:             req.URL,
		Version:         req.Version,
		Skills:          req.Skills,
		SecuritySchemes: req.SecuritySchemes,
		Tags:            req.Tags,
		Visibility:      req.Visibility,
		TrustLevel:      req.TrustLevel,
		Enabled:         true,
		HealthStatus:    registry.HealthUnknown,
	}
}

// EditAgentRequest is the body of PUT /api/agents/{path}.
type EditAgentRequest struct {
	Name            string                    `json:"name" validate:"required"`
	Description     string                    `json:"description"`
	URL             string                    `json:"url" validate:"required,url"`
	Version         string                    `json:"version,omitempty"`
	Skills          []registry.SkillDescriptor `json:"skills,omitempty" validate:"dive"`
	SecuritySchemes []registry.SecurityScheme `json:"security_schemes,omitempty"`
	Tags            []string                  `json:"tags,omitempty"`
	Visibility      registry.Visibility       `json:"visibility" validate:"required,oneof=public private"`
	TrustLevel      registry.TrustLevel       `json:"trust_level" validate:"required,oneof=community verified trusted"`
}

func (req EditAgentRequest) applyTo(rec registry.AgentRecord) registry.AgentRecord {
	rec.Name = req.Name
	rec.Description = req.Description
	rec.URL = req.URL
	rec.Version = req.Version
	rec.Skills = req.Skills
	rec.SecuritySchemes = req.SecuritySchemes
	rec.Tags = req.Tags
	rec.Visibility = req.Visibility
	rec.TrustLevel = req.TrustLevel
	return rec
}
