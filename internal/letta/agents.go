package letta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
)

type agentsAPI struct{ c *HTTPClient }

func (a *agentsAPI) List(ctx context.Context, params ListAgentsParams) ([]Agent, error) {
	q := pageQuery(params.Limit, params.Offset)
	if params.Name != "" {
		q.Set("name", params.Name)
	}
	for _, tag := range params.Tags {
		q.Add("tags", tag)
	}
	var agents []Agent
	err := a.c.do(ctx, request{method: http.MethodGet, path: "/agents/", query: q}, &agents)
	return agents, err
}

func (a *agentsAPI) Count(ctx context.Context) (int, error) {
	var n int
	err := a.c.do(ctx, request{method: http.MethodGet, path: "/agents/count"}, &n)
	return n, err
}

func (a *agentsAPI) Create(ctx context.Context, req CreateAgentRequest) (*Agent, error) {
	var agent Agent
	if err := a.c.do(ctx, request{method: http.MethodPost, path: "/agents/", body: req}, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (a *agentsAPI) Get(ctx context.Context, agentID ID) (*Agent, error) {
	var agent Agent
	if err := a.c.do(ctx, agentRequest(http.MethodGet, agentID, ""), &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (a *agentsAPI) Update(ctx context.Context, agentID ID, patch map[string]interface{}) (*Agent, error) {
	req := agentRequest(http.MethodPatch, agentID, "")
	req.body = patch
	var agent Agent
	if err := a.c.do(ctx, req, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (a *agentsAPI) Delete(ctx context.Context, agentID ID) error {
	return a.c.do(ctx, agentRequest(http.MethodDelete, agentID, ""), nil)
}

func (a *agentsAPI) Export(ctx context.Context, agentID ID) (AgentExport, error) {
	var export AgentExport
	if err := a.c.do(ctx, agentRequest(http.MethodGet, agentID, "/export"), &export); err != nil {
		return nil, err
	}
	return export, nil
}

// Import uploads an export document as the multipart "file" field
func (a *agentsAPI) Import(ctx context.Context, data AgentExport) (*Agent, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode agent export: %w", err)
	}
	body, contentType, err := multipartFile("file", "agent.json", "application/json", encoded)
	if err != nil {
		return nil, err
	}

	var agent Agent
	req := request{method: http.MethodPost, path: "/agents/import", rawBody: body, contentType: contentType}
	if err := a.c.do(ctx, req, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (a *agentsAPI) Context(ctx context.Context, agentID ID) (map[string]interface{}, error) {
	var window map[string]interface{}
	err := a.c.do(ctx, agentRequest(http.MethodGet, agentID, "/context"), &window)
	return window, err
}

func (a *agentsAPI) ListTools(ctx context.Context, agentID ID) ([]Tool, error) {
	var tools []Tool
	err := a.c.do(ctx, agentRequest(http.MethodGet, agentID, "/tools"), &tools)
	return tools, err
}

func (a *agentsAPI) AttachTool(ctx context.Context, agentID, toolID ID) (*Agent, error) {
	return a.patchAgent(ctx, agentID, "/tools/attach/"+escape(toolID.String()))
}

func (a *agentsAPI) DetachTool(ctx context.Context, agentID, toolID ID) (*Agent, error) {
	return a.patchAgent(ctx, agentID, "/tools/detach/"+escape(toolID.String()))
}

func (a *agentsAPI) ListSources(ctx context.Context, agentID ID) ([]Source, error) {
	var sources []Source
	err := a.c.do(ctx, agentRequest(http.MethodGet, agentID, "/sources"), &sources)
	return sources, err
}

func (a *agentsAPI) AttachSource(ctx context.Context, agentID, sourceID ID) (*Agent, error) {
	return a.patchAgent(ctx, agentID, "/sources/attach/"+escape(sourceID.String()))
}

func (a *agentsAPI) DetachSource(ctx context.Context, agentID, sourceID ID) (*Agent, error) {
	return a.patchAgent(ctx, agentID, "/sources/detach/"+escape(sourceID.String()))
}

func (a *agentsAPI) patchAgent(ctx context.Context, agentID ID, suffix string) (*Agent, error) {
	var agent Agent
	if err := a.c.do(ctx, agentRequest(http.MethodPatch, agentID, suffix), &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// agentRequest addresses /agents/{id}{suffix}; a 404 reports the agent
func agentRequest(method string, agentID ID, suffix string) request {
	return request{
		method:   method,
		path:     "/agents/" + escape(agentID.String()) + suffix,
		resource: "agent",
		id:       agentID.String(),
	}
}

func multipartFile(field, fileName, contentType string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fileName)}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header["Content-Type"] = []string{contentType}

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write multipart part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
