package routers

import (
	"context"
	"fmt"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/letta"
)

// ToolManagerName is the MCP tool served by ToolRouter
const ToolManagerName = "letta_tool_manager"

// ToolOperation enumerates the operations of letta_tool_manager
type ToolOperation string

const (
	ToolList               ToolOperation = "list"
	ToolGet                ToolOperation = "get"
	ToolCreate             ToolOperation = "create"
	ToolAttach             ToolOperation = "attach"
	ToolBulkAttach         ToolOperation = "bulk_attach"
	ToolUpdate             ToolOperation = "update"
	ToolDelete             ToolOperation = "delete"
	ToolUpsert             ToolOperation = "upsert"
	ToolDetach             ToolOperation = "detach"
	ToolGenerateFromPrompt ToolOperation = "generate_from_prompt"
	ToolGenerateSchema     ToolOperation = "generate_schema"
	ToolRunFromSource      ToolOperation = "run_from_source"
	ToolAddBaseTools       ToolOperation = "add_base_tools"
)

// AllToolOperations lists every ToolOperation in catalogue order
var AllToolOperations = []ToolOperation{
	ToolList, ToolGet, ToolCreate, ToolAttach, ToolBulkAttach, ToolUpdate,
	ToolDelete, ToolUpsert, ToolDetach, ToolGenerateFromPrompt,
	ToolGenerateSchema, ToolRunFromSource, ToolAddBaseTools,
}

// SourceTypes are the tool languages Letta executes
var SourceTypes = []string{"python", "javascript"}

// toolMutableFields are the fields update can change
var toolMutableFields = []string{
	"name", "description", "source_code", "source_type", "tags", "json_schema",
	"args_json_schema", "return_char_limit", "pip_requirements",
}

// ToolRequest is the union of every letta_tool_manager argument
type ToolRequest struct {
	Operation       ToolOperation          `json:"operation,omitempty" mapstructure:"operation"`
	ToolID          string                 `json:"tool_id,omitempty" mapstructure:"tool_id"`
	AgentID         string                 `json:"agent_id,omitempty" mapstructure:"agent_id"`
	AgentIDs        []string               `json:"agent_ids,omitempty" mapstructure:"agent_ids"`
	Name            string                 `json:"name,omitempty" mapstructure:"name"`
	Description     *string                `json:"description,omitempty" mapstructure:"description"`
	SourceCode      string                 `json:"source_code,omitempty" mapstructure:"source_code"`
	SourceType      string                 `json:"source_type,omitempty" mapstructure:"source_type"`
	Tags            []string               `json:"tags,omitempty" mapstructure:"tags"`
	JSONSchema      map[string]interface{} `json:"json_schema,omitempty" mapstructure:"json_schema"`
	ArgsJSONSchema  map[string]interface{} `json:"args_json_schema,omitempty" mapstructure:"args_json_schema"`
	ReturnCharLimit int                    `json:"return_char_limit,omitempty" mapstructure:"return_char_limit"`
	Args            map[string]interface{} `json:"args,omitempty" mapstructure:"args"`
	EnvVars         map[string]string      `json:"env_vars,omitempty" mapstructure:"env_vars"`
	PipRequirements []letta.PipRequirement `json:"pip_requirements,omitempty" mapstructure:"pip_requirements"`
	Limit           int                    `json:"limit,omitempty" mapstructure:"limit"`
	Offset          int                    `json:"offset,omitempty" mapstructure:"offset"`

	RequestHeartbeat bool `json:"request_heartbeat,omitempty" mapstructure:"request_heartbeat"`
}

func (r *ToolRequest) validateSourceType() error {
	if r.SourceType == "" {
		return nil
	}
	for _, t := range SourceTypes {
		if r.SourceType == t {
			return nil
		}
	}
	return mcperrors.NewInvalidPayloadError("source_type", "must be one of python, javascript", r.SourceType)
}

func (r *ToolRequest) createRequest() (letta.ToolCreateRequest, error) {
	if err := r.validateSourceType(); err != nil {
		return letta.ToolCreateRequest{}, err
	}
	if r.ReturnCharLimit < 0 {
		return letta.ToolCreateRequest{}, mcperrors.NewInvalidPayloadError("return_char_limit", "must not be negative", r.ReturnCharLimit)
	}
	create := letta.ToolCreateRequest{
		SourceCode:      r.SourceCode,
		SourceType:      r.SourceType,
		Tags:            r.Tags,
		JSONSchema:      r.JSONSchema,
		ArgsJSONSchema:  r.ArgsJSONSchema,
		ReturnCharLimit: r.ReturnCharLimit,
		PipRequirements: r.PipRequirements,
	}
	if r.Description != nil {
		create.Description = *r.Description
	}
	return create, nil
}

// ToolResponse is the letta_tool_manager envelope
type ToolResponse struct {
	Envelope
	Count   *int        `json:"count,omitempty"`
	ToolID  string      `json:"tool_id,omitempty"`
	AgentID string      `json:"agent_id,omitempty"`
	Outcome BulkOutcome `json:"outcome,omitempty"`
	Errors  []BulkItem  `json:"errors,omitempty"`
}

// ToolRouter serves letta_tool_manager
type ToolRouter struct {
	*dispatcher[ToolOperation, ToolRequest]
	client letta.Client
}

var _ Router = (*ToolRouter)(nil)

// NewToolRouter builds the router; it fails if any operation lacks a handler
func NewToolRouter(client letta.Client, opts Options) (*ToolRouter, error) {
	r := &ToolRouter{client: client}
	routes := map[ToolOperation]route[ToolRequest]{
		ToolList:               {handle: r.list},
		ToolGet:                {requires: need("tool_id"), handle: r.get},
		ToolCreate:             {requires: need("source_code"), handle: r.create},
		ToolAttach:             {requires: need("tool_id", "agent_id"), handle: r.attach},
		ToolBulkAttach:         {requires: need("tool_id", "agent_ids"), handle: r.bulkAttach},
		ToolUpdate:             {requires: need("tool_id").orAnyKey(toolMutableFields...), handle: r.update},
		ToolDelete:             {requires: need("tool_id"), handle: r.delete},
		ToolUpsert:             {requires: need("source_code"), handle: r.upsert},
		ToolDetach:             {requires: need("tool_id", "agent_id"), handle: r.detach},
		ToolGenerateFromPrompt: {handle: r.generateFromPrompt},
		ToolGenerateSchema:     {handle: r.generateSchema},
		ToolRunFromSource:      {requires: need("source_code", "args"), handle: r.runFromSource},
		ToolAddBaseTools:       {handle: r.addBaseTools},
	}

	d, err := newDispatcher(ToolManagerName,
		"Tool management: CRUD (list, get, create, update, delete, upsert), agent attachment (attach, detach, bulk_attach) and execution (run_from_source, add_base_tools). generate_from_prompt and generate_schema are listed but not available on this backend.",
		AllToolOperations, routes, opts)
	if err != nil {
		return nil, err
	}
	r.dispatcher = d
	return r, nil
}

func (r *ToolRouter) list(ctx context.Context, req *ToolRequest) (response, error) {
	p, err := page(req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	tools, err := r.client.Tools().List(ctx, p)
	if err != nil {
		return nil, err
	}
	return &ToolResponse{
		Envelope: ok(fmt.Sprintf("Found %d tools", len(tools)), nonNil(tools)),
		Count:    countOf(len(tools)),
	}, nil
}

func (r *ToolRouter) get(ctx context.Context, req *ToolRequest) (response, error) {
	toolID, err := letta.ParseID("tool_id", req.ToolID)
	if err != nil {
		return nil, err
	}
	tool, err := r.client.Tools().Get(ctx, toolID)
	if err != nil {
		return nil, err
	}
	return &ToolResponse{Envelope: ok("Tool retrieved successfully", tool), ToolID: tool.ID}, nil
}

func (r *ToolRouter) create(ctx context.Context, req *ToolRequest) (response, error) {
	create, err := req.createRequest()
	if err != nil {
		return nil, err
	}
	tool, err := r.client.Tools().Create(ctx, create)
	if err != nil {
		return nil, err
	}
	return &ToolResponse{Envelope: ok("Tool created successfully", tool), ToolID: tool.ID}, nil
}

func (r *ToolRouter) upsert(ctx context.Context, req *ToolRequest) (response, error) {
	create, err := req.createRequest()
	if err != nil {
		return nil, err
	}
	tool, err := r.client.Tools().Upsert(ctx, create)
	if err != nil {
		return nil, err
	}
	return &ToolResponse{Envelope: ok("Tool upserted successfully", tool), ToolID: tool.ID}, nil
}

func (r *ToolRouter) update(ctx context.Context, req *ToolRequest) (response, error) {
	toolID, err := letta.ParseID("tool_id", req.ToolID)
	if err != nil {
		return nil, err
	}
	if err := req.validateSourceType(); err != nil {
		return nil, err
	}

	patch := map[string]interface{}{}
	set := func(key string, value interface{}, present bool) {
		if present {
			patch[key] = value
		}
	}
	set("name", req.Name, req.Name != "")
	set("description", req.Description, req.Description != nil)
	set("source_code", req.SourceCode, req.SourceCode != "")
	set("source_type", req.SourceType, req.SourceType != "")
	set("tags", req.Tags, req.Tags != nil)
	set("json_schema", req.JSONSchema, req.JSONSchema != nil)
	set("args_json_schema", req.ArgsJSONSchema, req.ArgsJSONSchema != nil)
	set("return_char_limit", req.ReturnCharLimit, req.ReturnCharLimit > 0)
	set("pip_requirements", req.PipRequirements, req.PipRequirements != nil)

	tool, err := r.client.Tools().Update(ctx, toolID, patch)
	if err != nil {
		return nil, err
	}
	return &ToolResponse{Envelope: ok("Tool updated successfully", tool), ToolID: tool.ID}, nil
}

func (r *ToolRouter) delete(ctx context.Context, req *ToolRequest) (response, error) {
	toolID, err := letta.ParseID("tool_id", req.ToolID)
	if err != nil {
		return nil, err
	}
	if err := r.client.Tools().Delete(ctx, toolID); err != nil {
		return nil, err
	}
	return &ToolResponse{
		Envelope: ok("Tool deleted successfully", map[string]interface{}{"tool_id": toolID.String(), "deleted": true}),
		ToolID:   toolID.String(),
	}, nil
}

func (r *ToolRouter) attach(ctx context.Context, req *ToolRequest) (response, error) {
	toolID, agentID, err := toolAndAgent(req)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Agents().AttachTool(ctx, agentID, toolID)
	if err != nil {
		return nil, err
	}
	return &ToolResponse{Envelope: ok("Tool attached successfully", agent), ToolID: toolID.String(), AgentID: agentID.String()}, nil
}

func (r *ToolRouter) detach(ctx context.Context, req *ToolRequest) (response, error) {
	toolID, agentID, err := toolAndAgent(req)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Agents().DetachTool(ctx, agentID, toolID)
	if err != nil {
		return nil, err
	}
	return &ToolResponse{Envelope: ok("Tool detached successfully", agent), ToolID: toolID.String(), AgentID: agentID.String()}, nil
}

func toolAndAgent(req *ToolRequest) (letta.ID, letta.ID, error) {
	toolID, err := letta.ParseID("tool_id", req.ToolID)
	if err != nil {
		return "", "", err
	}
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return "", "", err
	}
	return toolID, agentID, nil
}

func (r *ToolRouter) bulkAttach(ctx context.Context, req *ToolRequest) (response, error) {
	toolID, err := letta.ParseID("tool_id", req.ToolID)
	if err != nil {
		return nil, err
	}
	agentIDs, err := letta.ParseIDs("agent_ids", req.AgentIDs)
	if err != nil {
		return nil, err
	}

	result := runBulk(ctx, agentIDs, func(ctx context.Context, agentID letta.ID) (interface{}, error) {
		return r.client.Agents().AttachTool(ctx, agentID, toolID)
	})
	r.metrics.RecordBulkItems(r.tool, string(ToolBulkAttach), len(result.Results), len(result.Errors))

	resp := &ToolResponse{
		Envelope: ok(fmt.Sprintf("Attached to %d agents, %d errors", len(result.Results), len(result.Errors)), result),
		Count:    countOf(len(result.Results)),
		ToolID:   toolID.String(),
		Outcome:  result.Outcome,
		Errors:   result.Errors,
	}
	resp.Success = result.Succeeded()
	return resp, nil
}

func (r *ToolRouter) generateFromPrompt(context.Context, *ToolRequest) (response, error) {
	return nil, mcperrors.NewNotImplementedError(string(ToolGenerateFromPrompt),
		"the Letta backend does not expose tool generation from a natural-language prompt")
}

func (r *ToolRouter) generateSchema(context.Context, *ToolRequest) (response, error) {
	return nil, mcperrors.NewNotImplementedError(string(ToolGenerateSchema),
		"the Letta backend does not expose JSON schema generation from tool source")
}

func (r *ToolRouter) runFromSource(ctx context.Context, req *ToolRequest) (response, error) {
	if err := req.validateSourceType(); err != nil {
		return nil, err
	}
	result, err := r.client.Tools().Run(ctx, letta.ToolRunRequest{
		SourceCode:      req.SourceCode,
		SourceType:      req.SourceType,
		Name:            req.Name,
		Args:            req.Args,
		EnvVars:         req.EnvVars,
		ArgsJSONSchema:  req.ArgsJSONSchema,
		PipRequirements: req.PipRequirements,
	})
	if err != nil {
		return nil, err
	}
	return &ToolResponse{Envelope: ok("Tool executed successfully", result)}, nil
}

func (r *ToolRouter) addBaseTools(ctx context.Context, _ *ToolRequest) (response, error) {
	tools, err := r.client.Tools().AddBaseTools(ctx)
	if err != nil {
		return nil, err
	}
	return &ToolResponse{
		Envelope: ok(fmt.Sprintf("Added %d base tools", len(tools)), nonNil(tools)),
		Count:    countOf(len(tools)),
	}, nil
}
