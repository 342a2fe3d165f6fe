// Package letta is the typed client for the Letta agent runtime REST API.
// Routers depend on the Client interface only; HTTPClient is the production
// implementation.
package letta

import "context"

// Client exposes one method group per Letta resource. Implementations must
// be safe for concurrent use.
type Client interface {
	Agents() AgentsAPI
	Messages() MessagesAPI
	Memory() MemoryAPI
	Blocks() BlocksAPI
	Passages() PassagesAPI
	Tools() ToolsAPI
	MCPServers() MCPServersAPI
	Sources() SourcesAPI
	Folders() FoldersAPI
	Files() FilesAPI
	Jobs() JobsAPI
}

// AgentsAPI manages agents and their tool and source attachments
type AgentsAPI interface {
	List(ctx context.Context, params ListAgentsParams) ([]Agent, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, req CreateAgentRequest) (*Agent, error)
	Get(ctx context.Context, agentID ID) (*Agent, error)
	Update(ctx context.Context, agentID ID, patch map[string]interface{}) (*Agent, error)
	Delete(ctx context.Context, agentID ID) error
	Export(ctx context.Context, agentID ID) (AgentExport, error)
	Import(ctx context.Context, data AgentExport) (*Agent, error)
	Context(ctx context.Context, agentID ID) (map[string]interface{}, error)

	ListTools(ctx context.Context, agentID ID) ([]Tool, error)
	AttachTool(ctx context.Context, agentID, toolID ID) (*Agent, error)
	DetachTool(ctx context.Context, agentID, toolID ID) (*Agent, error)

	ListSources(ctx context.Context, agentID ID) ([]Source, error)
	AttachSource(ctx context.Context, agentID, sourceID ID) (*Agent, error)
	DetachSource(ctx context.Context, agentID, sourceID ID) (*Agent, error)
}

// MessagesAPI talks to an agent
type MessagesAPI interface {
	Send(ctx context.Context, agentID ID, req SendMessageRequest) (*LettaResponse, error)
	// Stream collects every server-sent chunk of a streamed reply
	Stream(ctx context.Context, agentID ID, req SendMessageRequest) ([]map[string]interface{}, error)
	SendAsync(ctx context.Context, agentID ID, req SendMessageRequest) (*Run, error)
	Cancel(ctx context.Context, agentID ID, runIDs []ID) (map[string]interface{}, error)
	Preview(ctx context.Context, agentID ID, req SendMessageRequest) (map[string]interface{}, error)
	Search(ctx context.Context, agentID ID, req MessageSearchRequest) ([]Message, error)
	Get(ctx context.Context, agentID, messageID ID) (*Message, error)
	Reset(ctx context.Context, agentID ID) (*Agent, error)
	Summarize(ctx context.Context, agentID ID, maxMessageLength int) error
}

// MemoryAPI addresses an agent's core memory blocks by label
type MemoryAPI interface {
	Core(ctx context.Context, agentID ID) (*Memory, error)
	ListBlocks(ctx context.Context, agentID ID) ([]Block, error)
	GetBlock(ctx context.Context, agentID ID, label string) (*Block, error)
	UpdateBlock(ctx context.Context, agentID ID, label string, req UpdateBlockRequest) (*Block, error)
	AttachBlock(ctx context.Context, agentID, blockID ID) (*Agent, error)
	DetachBlock(ctx context.Context, agentID, blockID ID) (*Agent, error)
}

// BlocksAPI manages standalone blocks
type BlocksAPI interface {
	List(ctx context.Context, params ListBlocksParams) ([]Block, error)
	Create(ctx context.Context, req CreateBlockRequest) (*Block, error)
	Get(ctx context.Context, blockID ID) (*Block, error)
	Update(ctx context.Context, blockID ID, req UpdateBlockRequest) (*Block, error)
	ListAgents(ctx context.Context, blockID ID) ([]Agent, error)
}

// PassagesAPI manages an agent's archival memory
type PassagesAPI interface {
	List(ctx context.Context, agentID ID, params ListPassagesParams) ([]Passage, error)
	Create(ctx context.Context, agentID ID, text string) ([]Passage, error)
	Update(ctx context.Context, agentID, passageID ID, text string) ([]Passage, error)
	Delete(ctx context.Context, agentID, passageID ID) error
}

// ToolsAPI manages the tool registry
type ToolsAPI interface {
	List(ctx context.Context, params ListParams) ([]Tool, error)
	Get(ctx context.Context, toolID ID) (*Tool, error)
	Create(ctx context.Context, req ToolCreateRequest) (*Tool, error)
	Upsert(ctx context.Context, req ToolCreateRequest) (*Tool, error)
	Update(ctx context.Context, toolID ID, patch map[string]interface{}) (*Tool, error)
	Delete(ctx context.Context, toolID ID) error
	Run(ctx context.Context, req ToolRunRequest) (*ToolReturn, error)
	AddBaseTools(ctx context.Context) ([]Tool, error)
}

// MCPServersAPI manages external tool servers registered with Letta
type MCPServersAPI interface {
	List(ctx context.Context) (map[string]MCPServerConfig, error)
	Add(ctx context.Context, config MCPServerConfig) ([]MCPServerConfig, error)
	Update(ctx context.Context, name string, config MCPServerConfig) (MCPServerConfig, error)
	Delete(ctx context.Context, name string) ([]MCPServerConfig, error)
	Test(ctx context.Context, config MCPServerConfig) (interface{}, error)
	ListTools(ctx context.Context, name string) ([]MCPTool, error)
	RegisterTool(ctx context.Context, serverName, toolName string) (*Tool, error)
}

// SourcesAPI manages data sources and their files
type SourcesAPI interface {
	List(ctx context.Context, params ListParams) ([]Source, error)
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, sourceID ID) (*Source, error)
	Create(ctx context.Context, req CreateSourceRequest) (*Source, error)
	Update(ctx context.Context, sourceID ID, req UpdateSourceRequest) (*Source, error)
	Delete(ctx context.Context, sourceID ID) error
	Upload(ctx context.Context, sourceID ID, file Upload) (*Job, error)
	ListFiles(ctx context.Context, sourceID ID, params ListFilesParams) ([]FileMetadata, error)
	DeleteFile(ctx context.Context, sourceID, fileID ID) error
	ListAgents(ctx context.Context, sourceID ID) ([]string, error)
}

// FoldersAPI manages folders and their agent attachments
type FoldersAPI interface {
	List(ctx context.Context, params ListParams) ([]Folder, error)
	ListFiles(ctx context.Context, folderID ID, params ListFilesParams) ([]FileMetadata, error)
	ListAgents(ctx context.Context, folderID ID) ([]string, error)
	Attach(ctx context.Context, agentID, folderID ID) (*Agent, error)
	Detach(ctx context.Context, agentID, folderID ID) (*Agent, error)
}

// FilesAPI manages the set of files an agent has open
type FilesAPI interface {
	List(ctx context.Context, agentID ID) ([]AgentFile, error)
	// Open returns the names of files evicted to make room
	Open(ctx context.Context, agentID, fileID ID) ([]string, error)
	Close(ctx context.Context, agentID, fileID ID) error
	// CloseAll returns the names of every file that was closed
	CloseAll(ctx context.Context, agentID ID) ([]string, error)
}

// JobsAPI monitors backend jobs
type JobsAPI interface {
	List(ctx context.Context, params ListParams) ([]Job, error)
	ListActive(ctx context.Context) ([]Job, error)
	Get(ctx context.Context, jobID ID) (*Job, error)
	Cancel(ctx context.Context, jobID ID) (*Job, error)
}
