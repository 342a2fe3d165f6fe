package letta

// Agent is a Letta agent state
type Agent struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	System          string                 `json:"system,omitempty"`
	AgentType       string                 `json:"agent_type,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	LLMConfig       map[string]interface{} `json:"llm_config,omitempty"`
	EmbeddingConfig map[string]interface{} `json:"embedding_config,omitempty"`
	Tools           []Tool                 `json:"tools,omitempty"`
	Sources         []Source               `json:"sources,omitempty"`
	Memory          *Memory                `json:"memory,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       string                 `json:"created_at,omitempty"`
	UpdatedAt       string                 `json:"updated_at,omitempty"`
}

// CreateAgentRequest is the body of POST /v1/agents
type CreateAgentRequest struct {
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	System          string                 `json:"system,omitempty"`
	LLMConfig       map[string]interface{} `json:"llm_config,omitempty"`
	EmbeddingConfig map[string]interface{} `json:"embedding_config,omitempty"`
	ToolIDs         []string               `json:"tool_ids,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
}

// ListAgentsParams filters GET /v1/agents
type ListAgentsParams struct {
	Name   string
	Tags   []string
	Limit  int
	Offset int
}

// AgentExport is the portable serialization produced by the export endpoint
type AgentExport map[string]interface{}

// Memory is an agent's core memory
type Memory struct {
	Blocks []Block `json:"blocks"`
	Prompt string  `json:"prompt_template,omitempty"`
}

// Block is a labelled core memory block
type Block struct {
	ID          string                 `json:"id"`
	Label       string                 `json:"label"`
	Value       string                 `json:"value"`
	Description string                 `json:"description,omitempty"`
	Limit       int                    `json:"limit,omitempty"`
	IsTemplate  bool                   `json:"is_template,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// CreateBlockRequest is the body of POST /v1/blocks
type CreateBlockRequest struct {
	Label       string                 `json:"label"`
	Value       string                 `json:"value"`
	Description string                 `json:"description,omitempty"`
	Limit       int                    `json:"limit,omitempty"`
	IsTemplate  bool                   `json:"is_template,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateBlockRequest is a partial block update; nil fields are untouched
type UpdateBlockRequest struct {
	Label       *string                `json:"label,omitempty"`
	Value       *string                `json:"value,omitempty"`
	Description *string                `json:"description,omitempty"`
	Limit       *int                   `json:"limit,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ListBlocksParams filters GET /v1/blocks
type ListBlocksParams struct {
	Label      string
	IsTemplate *bool
	Limit      int
	Offset     int
}

// Passage is an archival memory entry
type Passage struct {
	ID        string                 `json:"id"`
	Text      string                 `json:"text"`
	AgentID   string                 `json:"agent_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt string                 `json:"created_at,omitempty"`
}

// ListPassagesParams filters archival memory; Search performs semantic search
type ListPassagesParams struct {
	Search string
	Limit  int
	Offset int
}

// Tool is a Letta tool definition
type Tool struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	SourceCode      string                 `json:"source_code,omitempty"`
	SourceType      string                 `json:"source_type,omitempty"`
	ToolType        string                 `json:"tool_type,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	JSONSchema      map[string]interface{} `json:"json_schema,omitempty"`
	ArgsJSONSchema  map[string]interface{} `json:"args_json_schema,omitempty"`
	ReturnCharLimit int                    `json:"return_char_limit,omitempty"`
	PipRequirements []PipRequirement       `json:"pip_requirements,omitempty"`
}

// PipRequirement pins a python dependency of a tool
type PipRequirement struct {
	Name    string `json:"name" mapstructure:"name"`
	Version string `json:"version,omitempty" mapstructure:"version"`
}

// ToolCreateRequest is the body of POST and PUT /v1/tools
type ToolCreateRequest struct {
	SourceCode      string                 `json:"source_code"`
	SourceType      string                 `json:"source_type,omitempty"`
	Description     string                 `json:"description,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	JSONSchema      map[string]interface{} `json:"json_schema,omitempty"`
	ArgsJSONSchema  map[string]interface{} `json:"args_json_schema,omitempty"`
	ReturnCharLimit int                    `json:"return_char_limit,omitempty"`
	PipRequirements []PipRequirement       `json:"pip_requirements,omitempty"`
}

// ToolRunRequest executes tool source without registering it
type ToolRunRequest struct {
	SourceCode      string                 `json:"source_code"`
	SourceType      string                 `json:"source_type,omitempty"`
	Name            string                 `json:"name,omitempty"`
	Args            map[string]interface{} `json:"args"`
	EnvVars         map[string]string      `json:"env_vars,omitempty"`
	ArgsJSONSchema  map[string]interface{} `json:"args_json_schema,omitempty"`
	PipRequirements []PipRequirement       `json:"pip_requirements,omitempty"`
}

// ToolReturn is the result of a tool execution
type ToolReturn struct {
	Status     string      `json:"status"`
	ToolReturn interface{} `json:"tool_return"`
	Stdout     []string    `json:"stdout,omitempty"`
	Stderr     []string    `json:"stderr,omitempty"`
}

// ListParams is plain limit/offset pagination
type ListParams struct {
	Limit  int
	Offset int
}

// MCPServerConfig is a registered external tool server definition. Its
// shape depends on the server type (stdio, sse, streamable_http).
type MCPServerConfig map[string]interface{}

// MCPTool is a tool exposed by an external tool server
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
	JSONSchema  map[string]interface{} `json:"json_schema,omitempty"`
}

// Schema returns the tool's declared argument schema, preferring the Letta
// json_schema over the raw MCP inputSchema
func (t MCPTool) Schema() map[string]interface{} {
	if t.JSONSchema != nil {
		return t.JSONSchema
	}
	return t.InputSchema
}

// Source is a Letta data source
type Source struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	EmbeddingConfig map[string]interface{} `json:"embedding_config,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       string                 `json:"created_at,omitempty"`
}

// CreateSourceRequest is the body of POST /v1/sources
type CreateSourceRequest struct {
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	EmbeddingConfig map[string]interface{} `json:"embedding_config,omitempty"`
}

// UpdateSourceRequest is a partial source update
type UpdateSourceRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ListFilesParams paginates the files of a source or folder
type ListFilesParams struct {
	Limit          int
	Offset         int
	IncludeContent bool
}

// Upload is a file pushed into a source
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// FileMetadata describes a file stored in a source or folder
type FileMetadata struct {
	ID               string `json:"id"`
	FileName         string `json:"file_name"`
	SourceID         string `json:"source_id,omitempty"`
	FileType         string `json:"file_type,omitempty"`
	FileSize         int64  `json:"file_size,omitempty"`
	ProcessingStatus string `json:"processing_status,omitempty"`
	Content          string `json:"content,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// Folder is a file folder that can be attached to agents
type Folder struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   string                 `json:"created_at,omitempty"`
}

// AgentFile is a file visible to an agent together with its open state
type AgentFile struct {
	ID         string `json:"id"`
	FileID     string `json:"file_id"`
	FileName   string `json:"file_name"`
	FolderID   string `json:"folder_id,omitempty"`
	FolderName string `json:"folder_name,omitempty"`
	IsOpen     bool   `json:"is_open"`
	LastAccess string `json:"last_accessed_at,omitempty"`
}

// Job is an asynchronous backend job (file processing, batch runs)
type Job struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	JobType     string                 `json:"job_type,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   string                 `json:"created_at,omitempty"`
	CompletedAt string                 `json:"completed_at,omitempty"`
}

// Run is the job created by an asynchronous message
type Run struct {
	ID        string                 `json:"id"`
	Status    string                 `json:"status"`
	AgentID   string                 `json:"agent_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt string                 `json:"created_at,omitempty"`
}

// MessageCreate is one input message
type MessageCreate struct {
	Role    string `json:"role" mapstructure:"role"`
	Content string `json:"content" mapstructure:"content"`
}

// Message is a message stored in an agent's history. Letta messages are
// polymorphic on message_type; content is kept in its decoded form.
type Message struct {
	ID          string      `json:"id"`
	MessageType string      `json:"message_type,omitempty"`
	Role        string      `json:"role,omitempty"`
	Content     interface{} `json:"content,omitempty"`
	Date        string      `json:"date,omitempty"`
}

// LettaResponse is the result of a synchronous message send
type LettaResponse struct {
	Messages   []Message              `json:"messages"`
	StopReason map[string]interface{} `json:"stop_reason,omitempty"`
	Usage      map[string]interface{} `json:"usage,omitempty"`
}

// SendMessageRequest is the body shared by send, stream, async and preview
type SendMessageRequest struct {
	Messages     []MessageCreate `json:"messages"`
	StreamTokens bool            `json:"stream_tokens,omitempty"`
}

// MessageSearchRequest searches an agent's history
type MessageSearchRequest struct {
	Query     string `json:"query"`
	Role      string `json:"role,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
