package gateway

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// methodToolsCall is the one JSON-RPC method whose authorization decision
// needs a third dimension (tool name) beyond (server, method) (§4.4).
const methodToolsCall = "tools/call"

// envelope is the JSON-RPC request shape the router needs to read (§4.7
// step 3): method, and — for tools/call — the tool name. Arguments are
// never unmarshaled past params.name; the gateway is schema-agnostic and
// forwards the body unchanged.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// parseEnvelope extracts method and (when applicable) tool name from a
// JSON-RPC request body without discarding or re-encoding it; callers keep
// forwarding the original bytes.
func parseEnvelope(body []byte) (method, toolName string, err error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", "", err
	}
	if env.Method != methodToolsCall || len(env.Params) == 0 {
		return env.Method, "", nil
	}

	var params mcp.CallToolParams
	if err := json.Unmarshal(env.Params, &params); err != nil {
		return env.Method, "", err
	}
	return env.Method, params.Name, nil
}
