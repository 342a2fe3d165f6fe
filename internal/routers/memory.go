package routers

import (
	"context"
	"fmt"
	"letta-mcp-server/internal/letta"
)

// MemoryToolName is the MCP tool served by MemoryRouter
const MemoryToolName = "letta_memory_unified"

// MemoryOperation enumerates the operations of letta_memory_unified
type MemoryOperation string

const (
	MemoryGetCoreMemory        MemoryOperation = "get_core_memory"
	MemoryUpdateCoreMemory     MemoryOperation = "update_core_memory"
	MemoryGetBlockByLabel      MemoryOperation = "get_block_by_label"
	MemoryListBlocks           MemoryOperation = "list_blocks"
	MemoryCreateBlock          MemoryOperation = "create_block"
	MemoryGetBlock             MemoryOperation = "get_block"
	MemoryUpdateBlock          MemoryOperation = "update_block"
	MemoryAttachBlock          MemoryOperation = "attach_block"
	MemoryDetachBlock          MemoryOperation = "detach_block"
	MemoryListAgentsUsingBlock MemoryOperation = "list_agents_using_block"
	MemorySearchArchival       MemoryOperation = "search_archival"
	MemoryListPassages         MemoryOperation = "list_passages"
	MemoryCreatePassage        MemoryOperation = "create_passage"
	MemoryUpdatePassage        MemoryOperation = "update_passage"
	MemoryDeletePassage        MemoryOperation = "delete_passage"
)

// AllMemoryOperations lists every MemoryOperation in catalogue order
var AllMemoryOperations = []MemoryOperation{
	MemoryGetCoreMemory, MemoryUpdateCoreMemory, MemoryGetBlockByLabel,
	MemoryListBlocks, MemoryCreateBlock, MemoryGetBlock, MemoryUpdateBlock,
	MemoryAttachBlock, MemoryDetachBlock, MemoryListAgentsUsingBlock,
	MemorySearchArchival, MemoryListPassages, MemoryCreatePassage,
	MemoryUpdatePassage, MemoryDeletePassage,
}

// MemoryRequest is the union of every letta_memory_unified argument
type MemoryRequest struct {
	Operation   MemoryOperation        `json:"operation,omitempty" mapstructure:"operation"`
	AgentID     string                 `json:"agent_id,omitempty" mapstructure:"agent_id"`
	BlockID     string                 `json:"block_id,omitempty" mapstructure:"block_id"`
	BlockLabel  string                 `json:"block_label,omitempty" mapstructure:"block_label"`
	PassageID   string                 `json:"passage_id,omitempty" mapstructure:"passage_id"`
	Label       string                 `json:"label,omitempty" mapstructure:"label"`
	Value       *string                `json:"value,omitempty" mapstructure:"value"`
	Text        string                 `json:"text,omitempty" mapstructure:"text"`
	Description *string                `json:"description,omitempty" mapstructure:"description"`
	Query       string                 `json:"query,omitempty" mapstructure:"query"`
	Limit       int                    `json:"limit,omitempty" mapstructure:"limit"`
	Offset      int                    `json:"offset,omitempty" mapstructure:"offset"`
	IsTemplate  *bool                  `json:"is_template,omitempty" mapstructure:"is_template"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" mapstructure:"metadata"`

	RequestHeartbeat bool `json:"request_heartbeat,omitempty" mapstructure:"request_heartbeat"`
}

// MemoryResponse is the letta_memory_unified envelope
type MemoryResponse struct {
	Envelope
	AgentID    string          `json:"agent_id,omitempty"`
	BlockID    string          `json:"block_id,omitempty"`
	PassageID  string          `json:"passage_id,omitempty"`
	Blocks     []letta.Block   `json:"blocks,omitempty"`
	Passages   []letta.Passage `json:"passages,omitempty"`
	CoreMemory *letta.Memory   `json:"core_memory,omitempty"`
	Agents     []letta.Agent   `json:"agents,omitempty"`
	Count      *int            `json:"count,omitempty"`
}

// MemoryRouter serves letta_memory_unified
type MemoryRouter struct {
	*dispatcher[MemoryOperation, MemoryRequest]
	client letta.Client
}

var _ Router = (*MemoryRouter)(nil)

// NewMemoryRouter builds the router; it fails if any operation lacks a handler
func NewMemoryRouter(client letta.Client, opts Options) (*MemoryRouter, error) {
	r := &MemoryRouter{client: client}
	routes := map[MemoryOperation]route[MemoryRequest]{
		MemoryGetCoreMemory:        {requires: need("agent_id"), handle: r.getCoreMemory},
		MemoryUpdateCoreMemory:     {requires: need("agent_id", "block_label").orAnyKey("value"), handle: r.updateCoreMemory},
		MemoryGetBlockByLabel:      {requires: need("agent_id", "block_label"), handle: r.getBlockByLabel},
		MemoryListBlocks:           {handle: r.listBlocks},
		MemoryCreateBlock:          {requires: need("label", "value"), handle: r.createBlock},
		MemoryGetBlock:             {requires: need("block_id"), handle: r.getBlock},
		MemoryUpdateBlock:          {requires: need("block_id").orAnyKey("value", "label", "description"), handle: r.updateBlock},
		MemoryAttachBlock:          {requires: need("agent_id", "block_id"), handle: r.attachBlock},
		MemoryDetachBlock:          {requires: need("agent_id", "block_id"), handle: r.detachBlock},
		MemoryListAgentsUsingBlock: {requires: need("block_id"), handle: r.listAgentsUsingBlock},
		MemorySearchArchival:       {requires: need("agent_id", "query"), handle: r.searchArchival},
		MemoryListPassages:         {requires: need("agent_id"), handle: r.listPassages},
		MemoryCreatePassage:        {requires: need("agent_id", "text"), handle: r.createPassage},
		MemoryUpdatePassage:        {requires: need("agent_id", "passage_id", "text"), handle: r.updatePassage},
		MemoryDeletePassage:        {requires: need("agent_id", "passage_id"), handle: r.deletePassage},
	}

	d, err := newDispatcher(MemoryToolName,
		"Unified memory operations: core memory (get_core_memory, update_core_memory, get_block_by_label), blocks (list_blocks, create_block, get_block, update_block, attach_block, detach_block, list_agents_using_block) and archival memory (search_archival, list_passages, create_passage, update_passage, delete_passage).",
		AllMemoryOperations, routes, opts)
	if err != nil {
		return nil, err
	}
	r.dispatcher = d
	return r, nil
}

func (r *MemoryRouter) getCoreMemory(ctx context.Context, req *MemoryRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	memory, err := r.client.Memory().Core(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{
		Envelope:   ok("Core memory retrieved successfully", memory),
		AgentID:    agentID.String(),
		CoreMemory: memory,
		Blocks:     memory.Blocks,
		Count:      countOf(len(memory.Blocks)),
	}, nil
}

func (r *MemoryRouter) updateCoreMemory(ctx context.Context, req *MemoryRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	block, err := r.client.Memory().UpdateBlock(ctx, agentID, req.BlockLabel, letta.UpdateBlockRequest{Value: req.Value})
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{
		Envelope: ok(fmt.Sprintf("Core memory block '%s' updated successfully", req.BlockLabel), block),
		AgentID:  agentID.String(),
		BlockID:  block.ID,
	}, nil
}

func (r *MemoryRouter) getBlockByLabel(ctx context.Context, req *MemoryRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	block, err := r.client.Memory().GetBlock(ctx, agentID, req.BlockLabel)
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{
		Envelope: ok(fmt.Sprintf("Block '%s' retrieved successfully", req.BlockLabel), block),
		AgentID:  agentID.String(),
		BlockID:  block.ID,
	}, nil
}

// listBlocks returns an agent's core blocks when agent_id is given and the
// global block catalogue otherwise
func (r *MemoryRouter) listBlocks(ctx context.Context, req *MemoryRequest) (response, error) {
	agentID, scoped, err := optionalID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	p, err := page(req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}

	var blocks []letta.Block
	if scoped {
		blocks, err = r.client.Memory().ListBlocks(ctx, agentID)
		blocks = window(blocks, p)
	} else {
		blocks, err = r.client.Blocks().List(ctx, letta.ListBlocksParams{
			Label:      req.Label,
			IsTemplate: req.IsTemplate,
			Limit:      p.Limit,
			Offset:     p.Offset,
		})
	}
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{
		Envelope: ok(fmt.Sprintf("Found %d blocks", len(blocks)), nonNil(blocks)),
		AgentID:  req.AgentID,
		Blocks:   blocks,
		Count:    countOf(len(blocks)),
	}, nil
}

func (r *MemoryRouter) createBlock(ctx context.Context, req *MemoryRequest) (response, error) {
	create := letta.CreateBlockRequest{
		Label:    req.Label,
		Value:    *req.Value,
		Metadata: req.Metadata,
	}
	if req.Description != nil {
		create.Description = *req.Description
	}
	if req.IsTemplate != nil {
		create.IsTemplate = *req.IsTemplate
	}
	block, err := r.client.Blocks().Create(ctx, create)
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{Envelope: ok("Block created successfully", block), BlockID: block.ID}, nil
}

func (r *MemoryRouter) getBlock(ctx context.Context, req *MemoryRequest) (response, error) {
	blockID, err := letta.ParseID("block_id", req.BlockID)
	if err != nil {
		return nil, err
	}
	block, err := r.client.Blocks().Get(ctx, blockID)
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{Envelope: ok("Block retrieved successfully", block), BlockID: block.ID}, nil
}

func (r *MemoryRouter) updateBlock(ctx context.Context, req *MemoryRequest) (response, error) {
	blockID, err := letta.ParseID("block_id", req.BlockID)
	if err != nil {
		return nil, err
	}
	update := letta.UpdateBlockRequest{
		Value:       req.Value,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if req.Label != "" {
		update.Label = &req.Label
	}
	block, err := r.client.Blocks().Update(ctx, blockID, update)
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{Envelope: ok("Block updated successfully", block), BlockID: block.ID}, nil
}

func (r *MemoryRouter) attachBlock(ctx context.Context, req *MemoryRequest) (response, error) {
	agentID, blockID, err := agentAndBlock(req)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Memory().AttachBlock(ctx, agentID, blockID)
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{
		Envelope: ok("Block attached to agent successfully", agent),
		AgentID:  agentID.String(),
		BlockID:  blockID.String(),
	}, nil
}

func (r *MemoryRouter) detachBlock(ctx context.Context, req *MemoryRequest) (response, error) {
	agentID, blockID, err := agentAndBlock(req)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Memory().DetachBlock(ctx, agentID, blockID)
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{
		Envelope: ok("Block detached from agent successfully", agent),
		AgentID:  agentID.String(),
		BlockID:  blockID.String(),
	}, nil
}

func agentAndBlock(req *MemoryRequest) (letta.ID, letta.ID, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return "", "", err
	}
	blockID, err := letta.ParseID("block_id", req.BlockID)
	if err != nil {
		return "", "", err
	}
	return agentID, blockID, nil
}

func (r *MemoryRouter) listAgentsUsingBlock(ctx context.Context, req *MemoryRequest) (response, error) {
	blockID, err := letta.ParseID("block_id", req.BlockID)
	if err != nil {
		return nil, err
	}
	agents, err := r.client.Blocks().ListAgents(ctx, blockID)
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{
		Envelope: ok(fmt.Sprintf("Found %d agents using block", len(agents)), nonNil(agents)),
		BlockID:  blockID.String(),
		Agents:   agents,
		Count:    countOf(len(agents)),
	}, nil
}

func (r *MemoryRouter) searchArchival(ctx context.Context, req *MemoryRequest) (response, error) {
	return r.passages(ctx, req, req.Query)
}

func (r *MemoryRouter) listPassages(ctx context.Context, req *MemoryRequest) (response, error) {
	return r.passages(ctx, req, "")
}

func (r *MemoryRouter) passages(ctx context.Context, req *MemoryRequest, search string) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	p, err := page(req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	passages, err := r.client.Passages().List(ctx, agentID, letta.ListPassagesParams{
		Search: search,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{
		Envelope: ok(fmt.Sprintf("Found %d passages", len(passages)), nonNil(passages)),
		AgentID:  agentID.String(),
		Passages: passages,
		Count:    countOf(len(passages)),
	}, nil
}

func (r *MemoryRouter) createPassage(ctx context.Context, req *MemoryRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	passages, err := r.client.Passages().Create(ctx, agentID, req.Text)
	if err != nil {
		return nil, err
	}
	resp := &MemoryResponse{
		Envelope: ok("Passage created successfully", nonNil(passages)),
		AgentID:  agentID.String(),
		Passages: passages,
		Count:    countOf(len(passages)),
	}
	if len(passages) > 0 {
		resp.PassageID = passages[0].ID
	}
	return resp, nil
}

func (r *MemoryRouter) updatePassage(ctx context.Context, req *MemoryRequest) (response, error) {
	agentID, passageID, err := agentAndPassage(req)
	if err != nil {
		return nil, err
	}
	passages, err := r.client.Passages().Update(ctx, agentID, passageID, req.Text)
	if err != nil {
		return nil, err
	}
	return &MemoryResponse{
		Envelope:  ok("Passage updated successfully", nonNil(passages)),
		AgentID:   agentID.String(),
		PassageID: passageID.String(),
		Passages:  passages,
	}, nil
}

func (r *MemoryRouter) deletePassage(ctx context.Context, req *MemoryRequest) (response, error) {
	agentID, passageID, err := agentAndPassage(req)
	if err != nil {
		return nil, err
	}
	if err := r.client.Passages().Delete(ctx, agentID, passageID); err != nil {
		return nil, err
	}
	return &MemoryResponse{
		Envelope:  ok("Passage deleted successfully", map[string]interface{}{"passage_id": passageID.String(), "deleted": true}),
		AgentID:   agentID.String(),
		PassageID: passageID.String(),
	}, nil
}

func agentAndPassage(req *MemoryRequest) (letta.ID, letta.ID, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return "", "", err
	}
	passageID, err := letta.ParseID("passage_id", req.PassageID)
	if err != nil {
		return "", "", err
	}
	return agentID, passageID, nil
}
