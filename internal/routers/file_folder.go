package routers

import (
	"context"
	"fmt"
	"letta-mcp-server/internal/letta"
)

// FileFolderOpsName is the MCP tool served by FileFolderRouter
const FileFolderOpsName = "letta_file_folder_ops"

// FileFolderOperation enumerates the operations of letta_file_folder_ops
type FileFolderOperation string

const (
	FileFolderListFiles          FileFolderOperation = "list_files"
	FileFolderOpenFile           FileFolderOperation = "open_file"
	FileFolderCloseFile          FileFolderOperation = "close_file"
	FileFolderCloseAllFiles      FileFolderOperation = "close_all_files"
	FileFolderListFolders        FileFolderOperation = "list_folders"
	FileFolderAttachFolder       FileFolderOperation = "attach_folder"
	FileFolderDetachFolder       FileFolderOperation = "detach_folder"
	FileFolderListAgentsInFolder FileFolderOperation = "list_agents_in_folder"
)

// AllFileFolderOperations lists every FileFolderOperation in catalogue order
var AllFileFolderOperations = []FileFolderOperation{
	FileFolderListFiles, FileFolderOpenFile, FileFolderCloseFile,
	FileFolderCloseAllFiles, FileFolderListFolders, FileFolderAttachFolder,
	FileFolderDetachFolder, FileFolderListAgentsInFolder,
}

// FileFolderRequest is the union of every letta_file_folder_ops argument
type FileFolderRequest struct {
	Operation FileFolderOperation `json:"operation,omitempty" mapstructure:"operation"`
	AgentID   string              `json:"agent_id,omitempty" mapstructure:"agent_id"`
	FileID    string              `json:"file_id,omitempty" mapstructure:"file_id"`
	FolderID  string              `json:"folder_id,omitempty" mapstructure:"folder_id"`
	Limit     int                 `json:"limit,omitempty" mapstructure:"limit"`
	Offset    int                 `json:"offset,omitempty" mapstructure:"offset"`

	// accepted for compatibility with Letta tool calls and ignored
	RequestHeartbeat bool `json:"request_heartbeat,omitempty" mapstructure:"request_heartbeat"`
}

// AgentRef is the minimal agent view returned by list_agents_in_folder
type AgentRef struct {
	ID string `json:"id"`
}

// FileFolderResponse is the letta_file_folder_ops envelope
type FileFolderResponse struct {
	Envelope
	Count        *int              `json:"count,omitempty"`
	AgentID      string            `json:"agent_id,omitempty"`
	FileID       string            `json:"file_id,omitempty"`
	FolderID     string            `json:"folder_id,omitempty"`
	Files        []letta.AgentFile `json:"files,omitempty"`
	Opened       *bool             `json:"opened,omitempty"`
	EvictedFiles []string          `json:"evicted_files,omitempty"`
	Closed       *bool             `json:"closed,omitempty"`
	ClosedCount  *int              `json:"closed_count,omitempty"`
	ClosedFiles  []string          `json:"closed_files,omitempty"`
	Folders      []letta.Folder    `json:"folders,omitempty"`
	Attached     *bool             `json:"attached,omitempty"`
	Detached     *bool             `json:"detached,omitempty"`
	AgentState   *letta.Agent      `json:"agent_state,omitempty"`
	AgentIDs     []string          `json:"agent_ids,omitempty"`
	Agents       []AgentRef        `json:"agents,omitempty"`
}

// FileFolderRouter serves letta_file_folder_ops
type FileFolderRouter struct {
	*dispatcher[FileFolderOperation, FileFolderRequest]
	client letta.Client
}

var _ Router = (*FileFolderRouter)(nil)

// NewFileFolderRouter builds the router; it fails if any operation lacks a handler
func NewFileFolderRouter(client letta.Client, opts Options) (*FileFolderRouter, error) {
	r := &FileFolderRouter{client: client}
	routes := map[FileFolderOperation]route[FileFolderRequest]{
		FileFolderListFiles:          {requires: need("agent_id"), handle: r.listFiles},
		FileFolderOpenFile:           {requires: need("agent_id", "file_id"), handle: r.openFile},
		FileFolderCloseFile:          {requires: need("agent_id", "file_id"), handle: r.closeFile},
		FileFolderCloseAllFiles:      {requires: need("agent_id"), handle: r.closeAllFiles},
		FileFolderListFolders:        {handle: r.listFolders},
		FileFolderAttachFolder:       {requires: need("agent_id", "folder_id"), handle: r.attachFolder},
		FileFolderDetachFolder:       {requires: need("agent_id", "folder_id"), handle: r.detachFolder},
		FileFolderListAgentsInFolder: {requires: need("folder_id"), handle: r.listAgentsInFolder},
	}

	d, err := newDispatcher(FileFolderOpsName,
		"Agent file and folder operations: open, close and list the files in an agent's context window, and attach or detach folders.",
		AllFileFolderOperations, routes, opts)
	if err != nil {
		return nil, err
	}
	r.dispatcher = d
	return r, nil
}

func (r *FileFolderRouter) listFiles(ctx context.Context, req *FileFolderRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	files, err := r.client.Files().List(ctx, agentID)
	if err != nil {
		return nil, err
	}
	files = nonNil(files)
	return &FileFolderResponse{
		Envelope: ok(fmt.Sprintf("Found %d files", len(files)), files),
		Count:    countOf(len(files)),
		AgentID:  agentID.String(),
		Files:    files,
	}, nil
}

func agentAndFile(req *FileFolderRequest) (letta.ID, letta.ID, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return "", "", err
	}
	fileID, err := letta.ParseID("file_id", req.FileID)
	if err != nil {
		return "", "", err
	}
	return agentID, fileID, nil
}

func agentAndFolder(req *FileFolderRequest) (letta.ID, letta.ID, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return "", "", err
	}
	folderID, err := letta.ParseID("folder_id", req.FolderID)
	if err != nil {
		return "", "", err
	}
	return agentID, folderID, nil
}

func (r *FileFolderRouter) openFile(ctx context.Context, req *FileFolderRequest) (response, error) {
	agentID, fileID, err := agentAndFile(req)
	if err != nil {
		return nil, err
	}
	evicted, err := r.client.Files().Open(ctx, agentID, fileID)
	if err != nil {
		return nil, err
	}
	evicted = nonNil(evicted)
	return &FileFolderResponse{
		Envelope: ok("File opened successfully", map[string]interface{}{
			"file_id":       fileID.String(),
			"evicted_files": evicted,
		}),
		AgentID:      agentID.String(),
		FileID:       fileID.String(),
		Opened:       boolPtr(true),
		EvictedFiles: evicted,
	}, nil
}

func (r *FileFolderRouter) closeFile(ctx context.Context, req *FileFolderRequest) (response, error) {
	agentID, fileID, err := agentAndFile(req)
	if err != nil {
		return nil, err
	}
	if err := r.client.Files().Close(ctx, agentID, fileID); err != nil {
		return nil, err
	}
	return &FileFolderResponse{
		Envelope: ok("File closed successfully", map[string]interface{}{"file_id": fileID.String()}),
		AgentID:  agentID.String(),
		FileID:   fileID.String(),
		Closed:   boolPtr(true),
	}, nil
}

func (r *FileFolderRouter) closeAllFiles(ctx context.Context, req *FileFolderRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	closed, err := r.client.Files().CloseAll(ctx, agentID)
	if err != nil {
		return nil, err
	}
	closed = nonNil(closed)
	return &FileFolderResponse{
		Envelope:    ok(fmt.Sprintf("Closed %d files", len(closed)), map[string]interface{}{"closed_files": closed}),
		AgentID:     agentID.String(),
		ClosedCount: countOf(len(closed)),
		ClosedFiles: closed,
	}, nil
}

func (r *FileFolderRouter) listFolders(ctx context.Context, req *FileFolderRequest) (response, error) {
	p, err := page(req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	folders, err := r.client.Folders().List(ctx, p)
	if err != nil {
		return nil, err
	}
	folders = nonNil(folders)
	return &FileFolderResponse{
		Envelope: ok(fmt.Sprintf("Found %d folders", len(folders)), folders),
		Count:    countOf(len(folders)),
		Folders:  folders,
	}, nil
}

func (r *FileFolderRouter) attachFolder(ctx context.Context, req *FileFolderRequest) (response, error) {
	agentID, folderID, err := agentAndFolder(req)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Folders().Attach(ctx, agentID, folderID)
	if err != nil {
		return nil, err
	}
	return &FileFolderResponse{
		Envelope:   ok("Folder attached to agent successfully", agent),
		AgentID:    agentID.String(),
		FolderID:   folderID.String(),
		Attached:   boolPtr(true),
		AgentState: agent,
	}, nil
}

func (r *FileFolderRouter) detachFolder(ctx context.Context, req *FileFolderRequest) (response, error) {
	agentID, folderID, err := agentAndFolder(req)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Folders().Detach(ctx, agentID, folderID)
	if err != nil {
		return nil, err
	}
	return &FileFolderResponse{
		Envelope:   ok("Folder detached from agent successfully", agent),
		AgentID:    agentID.String(),
		FolderID:   folderID.String(),
		Detached:   boolPtr(true),
		AgentState: agent,
	}, nil
}

func (r *FileFolderRouter) listAgentsInFolder(ctx context.Context, req *FileFolderRequest) (response, error) {
	folderID, err := letta.ParseID("folder_id", req.FolderID)
	if err != nil {
		return nil, err
	}
	ids, err := r.client.Folders().ListAgents(ctx, folderID)
	if err != nil {
		return nil, err
	}
	ids = nonNil(ids)
	agents := make([]AgentRef, 0, len(ids))
	for _, id := range ids {
		agents = append(agents, AgentRef{ID: id})
	}
	return &FileFolderResponse{
		Envelope: ok(fmt.Sprintf("Found %d agents in folder", len(ids)), agents),
		Count:    countOf(len(ids)),
		FolderID: folderID.String(),
		AgentIDs: ids,
		Agents:   agents,
	}, nil
}
