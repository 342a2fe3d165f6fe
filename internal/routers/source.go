package routers

import (
	"context"
	"encoding/base64"
	"fmt"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/letta"
	"mime"
	"path/filepath"
	"strings"
)

// SourceManagerName is the MCP tool served by SourceRouter
const SourceManagerName = "letta_source_manager"

// SourceOperation enumerates the operations of letta_source_manager
type SourceOperation string

const (
	SourceList              SourceOperation = "list"
	SourceGet               SourceOperation = "get"
	SourceCreate            SourceOperation = "create"
	SourceUpdate            SourceOperation = "update"
	SourceDelete            SourceOperation = "delete"
	SourceAttach            SourceOperation = "attach"
	SourceDetach            SourceOperation = "detach"
	SourceListAttached      SourceOperation = "list_attached"
	SourceUpload            SourceOperation = "upload"
	SourceDeleteFiles       SourceOperation = "delete_files"
	SourceListFiles         SourceOperation = "list_files"
	SourceCount             SourceOperation = "count"
	SourceListAgentsUsing   SourceOperation = "list_agents_using"
	SourceListFolders       SourceOperation = "list_folders"
	SourceGetFolderContents SourceOperation = "get_folder_contents"
)

// AllSourceOperations lists every SourceOperation in catalogue order
var AllSourceOperations = []SourceOperation{
	SourceList, SourceGet, SourceCreate, SourceUpdate, SourceDelete,
	SourceAttach, SourceDetach, SourceListAttached, SourceUpload,
	SourceDeleteFiles, SourceListFiles, SourceCount, SourceListAgentsUsing,
	SourceListFolders, SourceGetFolderContents,
}

// SourceRequest is the union of every letta_source_manager argument
type SourceRequest struct {
	Operation       SourceOperation        `json:"operation,omitempty" mapstructure:"operation"`
	SourceID        string                 `json:"source_id,omitempty" mapstructure:"source_id"`
	AgentID         string                 `json:"agent_id,omitempty" mapstructure:"agent_id"`
	FolderID        string                 `json:"folder_id,omitempty" mapstructure:"folder_id"`
	FileID          string                 `json:"file_id,omitempty" mapstructure:"file_id"`
	Name            *string                `json:"name,omitempty" mapstructure:"name"`
	Description     *string                `json:"description,omitempty" mapstructure:"description"`
	FileName        string                 `json:"file_name,omitempty" mapstructure:"file_name"`
	FileData        string                 `json:"file_data,omitempty" mapstructure:"file_data"`
	ContentType     string                 `json:"content_type,omitempty" mapstructure:"content_type"`
	Limit           int                    `json:"limit,omitempty" mapstructure:"limit"`
	Offset          int                    `json:"offset,omitempty" mapstructure:"offset"`
	IncludeContent  bool                   `json:"include_content,omitempty" mapstructure:"include_content"`
	EmbeddingConfig map[string]interface{} `json:"embedding_config,omitempty" mapstructure:"embedding_config"`

	RequestHeartbeat bool `json:"request_heartbeat,omitempty" mapstructure:"request_heartbeat"`
}

// SourceResponse is the letta_source_manager envelope
type SourceResponse struct {
	Envelope
	Count    *int   `json:"count,omitempty"`
	SourceID string `json:"source_id,omitempty"`
	AgentID  string `json:"agent_id,omitempty"`
	FolderID string `json:"folder_id,omitempty"`
}

// SourceRouter serves letta_source_manager
type SourceRouter struct {
	*dispatcher[SourceOperation, SourceRequest]
	client letta.Client
}

var _ Router = (*SourceRouter)(nil)

// NewSourceRouter builds the router; it fails if any operation lacks a handler
func NewSourceRouter(client letta.Client, opts Options) (*SourceRouter, error) {
	r := &SourceRouter{client: client}
	routes := map[SourceOperation]route[SourceRequest]{
		SourceList:              {handle: r.list},
		SourceGet:               {requires: need("source_id"), handle: r.get},
		SourceCreate:            {requires: need("name"), handle: r.create},
		SourceUpdate:            {requires: need("source_id").orAnyKey("name", "description"), handle: r.update},
		SourceDelete:            {requires: need("source_id"), handle: r.delete},
		SourceAttach:            {requires: need("agent_id", "source_id"), handle: r.attach},
		SourceDetach:            {requires: need("agent_id", "source_id"), handle: r.detach},
		SourceListAttached:      {requires: need("agent_id"), handle: r.listAttached},
		SourceUpload:            {requires: need("source_id", "file_name", "file_data"), handle: r.upload},
		SourceDeleteFiles:       {requires: need("source_id", "file_id"), handle: r.deleteFile},
		SourceListFiles:         {requires: need("source_id"), handle: r.listFiles},
		SourceCount:             {handle: r.count},
		SourceListAgentsUsing:   {requires: need("source_id"), handle: r.listAgentsUsing},
		SourceListFolders:       {handle: r.listFolders},
		SourceGetFolderContents: {requires: need("folder_id"), handle: r.getFolderContents},
	}

	d, err := newDispatcher(SourceManagerName,
		"Data source management: CRUD (list, get, create, update, delete, count), agent attachment (attach, detach, list_attached, list_agents_using), files (upload, list_files, delete_files) and folders (list_folders, get_folder_contents).",
		AllSourceOperations, routes, opts)
	if err != nil {
		return nil, err
	}
	r.dispatcher = d
	return r, nil
}

func (r *SourceRouter) list(ctx context.Context, req *SourceRequest) (response, error) {
	p, err := page(req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	sources, err := r.client.Sources().List(ctx, p)
	if err != nil {
		return nil, err
	}
	return &SourceResponse{
		Envelope: ok(fmt.Sprintf("Found %d sources", len(sources)), nonNil(sources)),
		Count:    countOf(len(sources)),
	}, nil
}

func (r *SourceRouter) get(ctx context.Context, req *SourceRequest) (response, error) {
	sourceID, err := letta.ParseID("source_id", req.SourceID)
	if err != nil {
		return nil, err
	}
	source, err := r.client.Sources().Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return &SourceResponse{Envelope: ok("Source retrieved successfully", source), SourceID: source.ID}, nil
}

func (r *SourceRouter) create(ctx context.Context, req *SourceRequest) (response, error) {
	create := letta.CreateSourceRequest{
		Name:            strings.TrimSpace(*req.Name),
		EmbeddingConfig: req.EmbeddingConfig,
	}
	if req.Description != nil {
		create.Description = *req.Description
	}
	source, err := r.client.Sources().Create(ctx, create)
	if err != nil {
		return nil, err
	}
	return &SourceResponse{Envelope: ok("Source created successfully", source), SourceID: source.ID}, nil
}

func (r *SourceRouter) update(ctx context.Context, req *SourceRequest) (response, error) {
	sourceID, err := letta.ParseID("source_id", req.SourceID)
	if err != nil {
		return nil, err
	}
	source, err := r.client.Sources().Update(ctx, sourceID, letta.UpdateSourceRequest{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}
	return &SourceResponse{Envelope: ok("Source updated successfully", source), SourceID: source.ID}, nil
}

func (r *SourceRouter) delete(ctx context.Context, req *SourceRequest) (response, error) {
	sourceID, err := letta.ParseID("source_id", req.SourceID)
	if err != nil {
		return nil, err
	}
	if err := r.client.Sources().Delete(ctx, sourceID); err != nil {
		return nil, err
	}
	return &SourceResponse{
		Envelope: ok("Source deleted successfully", map[string]interface{}{"source_id": sourceID.String(), "deleted": true}),
		SourceID: sourceID.String(),
	}, nil
}

func (r *SourceRouter) attach(ctx context.Context, req *SourceRequest) (response, error) {
	agentID, sourceID, err := agentAndSource(req)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Agents().AttachSource(ctx, agentID, sourceID)
	if err != nil {
		return nil, err
	}
	return &SourceResponse{Envelope: ok("Source attached successfully", agent), SourceID: sourceID.String(), AgentID: agentID.String()}, nil
}

func (r *SourceRouter) detach(ctx context.Context, req *SourceRequest) (response, error) {
	agentID, sourceID, err := agentAndSource(req)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Agents().DetachSource(ctx, agentID, sourceID)
	if err != nil {
		return nil, err
	}
	return &SourceResponse{Envelope: ok("Source detached successfully", agent), SourceID: sourceID.String(), AgentID: agentID.String()}, nil
}

func agentAndSource(req *SourceRequest) (letta.ID, letta.ID, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return "", "", err
	}
	sourceID, err := letta.ParseID("source_id", req.SourceID)
	if err != nil {
		return "", "", err
	}
	return agentID, sourceID, nil
}

func (r *SourceRouter) listAttached(ctx context.Context, req *SourceRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	sources, err := r.client.Agents().ListSources(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return &SourceResponse{
		Envelope: ok(fmt.Sprintf("Found %d attached sources", len(sources)), nonNil(sources)),
		Count:    countOf(len(sources)),
		AgentID:  agentID.String(),
	}, nil
}

func (r *SourceRouter) upload(ctx context.Context, req *SourceRequest) (response, error) {
	sourceID, err := letta.ParseID("source_id", req.SourceID)
	if err != nil {
		return nil, err
	}
	data, err := decodeFileData(req.FileData)
	if err != nil {
		return nil, err
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = contentTypeFor(req.FileName)
	}

	job, err := r.client.Sources().Upload(ctx, sourceID, letta.Upload{
		FileName:    req.FileName,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return nil, err
	}
	return &SourceResponse{
		Envelope: ok(fmt.Sprintf("File '%s' uploaded successfully", req.FileName), job),
		SourceID: sourceID.String(),
	}, nil
}

// decodeFileData accepts padded and unpadded standard base64
func decodeFileData(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	data, err := base64.StdEncoding.DecodeString(raw)
	if err == nil {
		return data, nil
	}
	if data, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "=")); rawErr == nil {
		return data, nil
	}
	return nil, mcperrors.NewInvalidPayloadError("file_data", "must be base64 encoded: "+err.Error(), nil)
}

func contentTypeFor(fileName string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (r *SourceRouter) deleteFile(ctx context.Context, req *SourceRequest) (response, error) {
	sourceID, err := letta.ParseID("source_id", req.SourceID)
	if err != nil {
		return nil, err
	}
	fileID, err := letta.ParseID("file_id", req.FileID)
	if err != nil {
		return nil, err
	}
	if err := r.client.Sources().DeleteFile(ctx, sourceID, fileID); err != nil {
		return nil, err
	}
	return &SourceResponse{
		Envelope: ok("File deleted successfully", map[string]interface{}{"file_id": fileID.String(), "deleted": true}),
		SourceID: sourceID.String(),
	}, nil
}

func (r *SourceRouter) listFiles(ctx context.Context, req *SourceRequest) (response, error) {
	sourceID, err := letta.ParseID("source_id", req.SourceID)
	if err != nil {
		return nil, err
	}
	p, err := page(req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	files, err := r.client.Sources().ListFiles(ctx, sourceID, letta.ListFilesParams{
		Limit:          p.Limit,
		Offset:         p.Offset,
		IncludeContent: req.IncludeContent,
	})
	if err != nil {
		return nil, err
	}
	return &SourceResponse{
		Envelope: ok(fmt.Sprintf("Found %d files", len(files)), nonNil(files)),
		Count:    countOf(len(files)),
		SourceID: sourceID.String(),
	}, nil
}

func (r *SourceRouter) count(ctx context.Context, _ *SourceRequest) (response, error) {
	n, err := r.client.Sources().Count(ctx)
	if err != nil {
		return nil, err
	}
	return &SourceResponse{
		Envelope: ok(fmt.Sprintf("Total sources: %d", n), map[string]interface{}{"count": n}),
		Count:    countOf(n),
	}, nil
}

func (r *SourceRouter) listAgentsUsing(ctx context.Context, req *SourceRequest) (response, error) {
	sourceID, err := letta.ParseID("source_id", req.SourceID)
	if err != nil {
		return nil, err
	}
	agentIDs, err := r.client.Sources().ListAgents(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return &SourceResponse{
		Envelope: ok(fmt.Sprintf("Found %d agents using this source", len(agentIDs)), nonNil(agentIDs)),
		Count:    countOf(len(agentIDs)),
		SourceID: sourceID.String(),
	}, nil
}

func (r *SourceRouter) listFolders(ctx context.Context, req *SourceRequest) (response, error) {
	p, err := page(req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	folders, err := r.client.Folders().List(ctx, p)
	if err != nil {
		return nil, err
	}
	return &SourceResponse{
		Envelope: ok(fmt.Sprintf("Found %d folders", len(folders)), nonNil(folders)),
		Count:    countOf(len(folders)),
	}, nil
}

func (r *SourceRouter) getFolderContents(ctx context.Context, req *SourceRequest) (response, error) {
	folderID, err := letta.ParseID("folder_id", req.FolderID)
	if err != nil {
		return nil, err
	}
	p, err := page(req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	files, err := r.client.Folders().ListFiles(ctx, folderID, letta.ListFilesParams{
		Limit:          p.Limit,
		Offset:         p.Offset,
		IncludeContent: req.IncludeContent,
	})
	if err != nil {
		return nil, err
	}
	return &SourceResponse{
		Envelope: ok(fmt.Sprintf("Found %d files in folder", len(files)), nonNil(files)),
		Count:    countOf(len(files)),
		FolderID: folderID.String(),
	}, nil
}
