package letta

import (
	"context"
	"net/http"
	"strconv"
)

type memoryAPI struct{ c *HTTPClient }

func (m *memoryAPI) Core(ctx context.Context, agentID ID) (*Memory, error) {
	var memory Memory
	if err := m.c.do(ctx, agentRequest(http.MethodGet, agentID, "/core-memory"), &memory); err != nil {
		return nil, err
	}
	return &memory, nil
}

func (m *memoryAPI) ListBlocks(ctx context.Context, agentID ID) ([]Block, error) {
	var blocks []Block
	err := m.c.do(ctx, agentRequest(http.MethodGet, agentID, "/core-memory/blocks"), &blocks)
	return blocks, err
}

func (m *memoryAPI) GetBlock(ctx context.Context, agentID ID, label string) (*Block, error) {
	req := agentRequest(http.MethodGet, agentID, "/core-memory/blocks/"+escape(label))
	req.resource, req.id = "block", label
	var block Block
	if err := m.c.do(ctx, req, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (m *memoryAPI) UpdateBlock(ctx context.Context, agentID ID, label string, update UpdateBlockRequest) (*Block, error) {
	req := agentRequest(http.MethodPatch, agentID, "/core-memory/blocks/"+escape(label))
	req.resource, req.id = "block", label
	req.body = update
	var block Block
	if err := m.c.do(ctx, req, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (m *memoryAPI) AttachBlock(ctx context.Context, agentID, blockID ID) (*Agent, error) {
	return m.c.agents.patchAgent(ctx, agentID, "/core-memory/blocks/attach/"+escape(blockID.String()))
}

func (m *memoryAPI) DetachBlock(ctx context.Context, agentID, blockID ID) (*Agent, error) {
	return m.c.agents.patchAgent(ctx, agentID, "/core-memory/blocks/detach/"+escape(blockID.String()))
}

type blocksAPI struct{ c *HTTPClient }

func (b *blocksAPI) List(ctx context.Context, params ListBlocksParams) ([]Block, error) {
	q := pageQuery(params.Limit, params.Offset)
	if params.Label != "" {
		q.Set("label", params.Label)
	}
	if params.IsTemplate != nil {
		q.Set("templates_only", strconv.FormatBool(*params.IsTemplate))
	}
	var blocks []Block
	err := b.c.do(ctx, request{method: http.MethodGet, path: "/blocks/", query: q}, &blocks)
	return blocks, err
}

func (b *blocksAPI) Create(ctx context.Context, req CreateBlockRequest) (*Block, error) {
	var block Block
	if err := b.c.do(ctx, request{method: http.MethodPost, path: "/blocks/", body: req}, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (b *blocksAPI) Get(ctx context.Context, blockID ID) (*Block, error) {
	var block Block
	if err := b.c.do(ctx, blockRequest(http.MethodGet, blockID, ""), &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (b *blocksAPI) Update(ctx context.Context, blockID ID, update UpdateBlockRequest) (*Block, error) {
	req := blockRequest(http.MethodPatch, blockID, "")
	req.body = update
	var block Block
	if err := b.c.do(ctx, req, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (b *blocksAPI) ListAgents(ctx context.Context, blockID ID) ([]Agent, error) {
	var agents []Agent
	err := b.c.do(ctx, blockRequest(http.MethodGet, blockID, "/agents"), &agents)
	return agents, err
}

func blockRequest(method string, blockID ID, suffix string) request {
	return request{
		method:   method,
		path:     "/blocks/" + escape(blockID.String()) + suffix,
		resource: "block",
		id:       blockID.String(),
	}
}

type passagesAPI struct{ c *HTTPClient }

func (p *passagesAPI) List(ctx context.Context, agentID ID, params ListPassagesParams) ([]Passage, error) {
	req := agentRequest(http.MethodGet, agentID, "/archival-memory")
	req.query = pageQuery(params.Limit, params.Offset)
	if params.Search != "" {
		req.query.Set("search", params.Search)
	}
	var passages []Passage
	err := p.c.do(ctx, req, &passages)
	return passages, err
}

func (p *passagesAPI) Create(ctx context.Context, agentID ID, text string) ([]Passage, error) {
	req := agentRequest(http.MethodPost, agentID, "/archival-memory")
	req.body = map[string]string{"text": text}
	var passages []Passage
	err := p.c.do(ctx, req, &passages)
	return passages, err
}

func (p *passagesAPI) Update(ctx context.Context, agentID, passageID ID, text string) ([]Passage, error) {
	req := passageRequest(http.MethodPatch, agentID, passageID)
	req.body = map[string]string{"id": passageID.String(), "text": text}
	var passages []Passage
	err := p.c.do(ctx, req, &passages)
	return passages, err
}

func (p *passagesAPI) Delete(ctx context.Context, agentID, passageID ID) error {
	return p.c.do(ctx, passageRequest(http.MethodDelete, agentID, passageID), nil)
}

func passageRequest(method string, agentID, passageID ID) request {
	req := agentRequest(method, agentID, "/archival-memory/"+escape(passageID.String()))
	req.resource, req.id = "passage", passageID.String()
	return req
}
