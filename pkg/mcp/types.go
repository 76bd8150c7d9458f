package mcp

// ProtocolVersion is the MCP wire protocol date this client speaks.
const ProtocolVersion = "2024-11-05"

// Implementation identifies a client or server by name/version, echoed in
// the initialize handshake.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities is sent by this client during initialize.
type ClientCapabilities struct {
	Sampling     *struct{}      `json:"sampling,omitempty"`
	Experimental map[string]any `json:"experimental,omitempty"`
}

// ServerCapabilities is returned by the server during initialize.
type ServerCapabilities struct {
	Tools     *struct{ ListChanged bool `json:"listChanged,omitempty"` } `json:"tools,omitempty"`
	Resources *struct{ ListChanged bool `json:"listChanged,omitempty"` } `json:"resources,omitempty"`
	Prompts   *struct{ ListChanged bool `json:"listChanged,omitempty"` } `json:"prompts,omitempty"`
	Logging   map[string]any                                            `json:"logging,omitempty"`
}

// InitializeParams is this client's initialize request payload.
type InitializeParams struct {
	ProtocolVersion string              `json:"protocolVersion"`
	Capabilities    ClientCapabilities  `json:"capabilities"`
	ClientInfo      Implementation      `json:"clientInfo"`
}

// InitializeResult is the server's initialize response payload.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// Tool describes one callable tool a server exposes.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Resource describes one readable resource a server exposes.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Prompt describes one prompt template a server exposes.
type Prompt struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Arguments   []PromptArgument       `json:"arguments,omitempty"`
}

// PromptArgument describes one named argument accepted by a Prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ToolsListResult is the result payload of a tools/list call.
type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

// ToolCallResult is the result payload of a tools/call call.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is one piece of tool output, normally {"type":"text","text":...}.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ResourcesListResult is the result payload of a resources/list call.
type ResourcesListResult struct {
	Resources []Resource `json:"resources"`
}

// ResourceReadResult is the result payload of a resources/read call.
type ResourceReadResult struct {
	Contents []ResourceContent `json:"contents"`
}

// ResourceContent is one piece of resource content.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// PromptsListResult is the result payload of a prompts/list call.
type PromptsListResult struct {
	Prompts []Prompt `json:"prompts"`
}

// PromptGetResult is the result payload of a prompts/get call.
type PromptGetResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptMessage is one rendered message of a prompt template.
type PromptMessage struct {
	Role    string       `json:"role"`
	Content ContentBlock `json:"content"`
}
