package routers

import (
	"context"
	"fmt"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/letta"
	"strings"
)

// AgentToolName is the MCP tool served by AgentRouter
const AgentToolName = "letta_agent_advanced"

// AgentOperation enumerates the operations of letta_agent_advanced
type AgentOperation string

const (
	AgentList           AgentOperation = "list"
	AgentCreate         AgentOperation = "create"
	AgentGet            AgentOperation = "get"
	AgentUpdate         AgentOperation = "update"
	AgentDelete         AgentOperation = "delete"
	AgentListTools      AgentOperation = "list_tools"
	AgentSendMessage    AgentOperation = "send_message"
	AgentExport         AgentOperation = "export"
	AgentImport         AgentOperation = "import"
	AgentClone          AgentOperation = "clone"
	AgentGetConfig      AgentOperation = "get_config"
	AgentBulkDelete     AgentOperation = "bulk_delete"
	AgentContext        AgentOperation = "context"
	AgentResetMessages  AgentOperation = "reset_messages"
	AgentSummarize      AgentOperation = "summarize"
	AgentStream         AgentOperation = "stream"
	AgentAsyncMessage   AgentOperation = "async_message"
	AgentCancelMessage  AgentOperation = "cancel_message"
	AgentPreviewPayload AgentOperation = "preview_payload"
	AgentSearchMessages AgentOperation = "search_messages"
	AgentGetMessage     AgentOperation = "get_message"
	AgentCount          AgentOperation = "count"
)

// AllAgentOperations lists every AgentOperation in catalogue order
var AllAgentOperations = []AgentOperation{
	AgentList, AgentCreate, AgentGet, AgentUpdate, AgentDelete, AgentListTools,
	AgentSendMessage, AgentExport, AgentImport, AgentClone, AgentGetConfig,
	AgentBulkDelete, AgentContext, AgentResetMessages, AgentSummarize,
	AgentStream, AgentAsyncMessage, AgentCancelMessage, AgentPreviewPayload,
	AgentSearchMessages, AgentGetMessage, AgentCount,
}

// AgentFilters selects the agents removed by bulk_delete
type AgentFilters struct {
	AgentNameFilter string   `json:"agent_name_filter,omitempty" mapstructure:"agent_name_filter"`
	AgentTagFilter  string   `json:"agent_tag_filter,omitempty" mapstructure:"agent_tag_filter"`
	AgentIDs        []string `json:"agent_ids,omitempty" mapstructure:"agent_ids"`
}

// SearchFilters narrows search_messages
type SearchFilters struct {
	StartDate string `json:"start_date,omitempty" mapstructure:"start_date"`
	EndDate   string `json:"end_date,omitempty" mapstructure:"end_date"`
	Role      string `json:"role,omitempty" mapstructure:"role"`
}

// AgentRequest is the union of every letta_agent_advanced argument
type AgentRequest struct {
	Operation        AgentOperation         `json:"operation,omitempty" mapstructure:"operation"`
	AgentID          string                 `json:"agent_id,omitempty" mapstructure:"agent_id"`
	Name             string                 `json:"name,omitempty" mapstructure:"name"`
	Description      string                 `json:"description,omitempty" mapstructure:"description"`
	System           string                 `json:"system,omitempty" mapstructure:"system"`
	LLMConfig        map[string]interface{} `json:"llm_config,omitempty" mapstructure:"llm_config"`
	EmbeddingConfig  map[string]interface{} `json:"embedding_config,omitempty" mapstructure:"embedding_config"`
	ToolIDs          []string               `json:"tool_ids,omitempty" mapstructure:"tool_ids"`
	Tags             []string               `json:"tags,omitempty" mapstructure:"tags"`
	Pagination       *Pagination            `json:"pagination,omitempty" mapstructure:"pagination"`
	Limit            int                    `json:"limit,omitempty" mapstructure:"limit"`
	Offset           int                    `json:"offset,omitempty" mapstructure:"offset"`
	Messages         []letta.MessageCreate  `json:"messages,omitempty" mapstructure:"messages"`
	Stream           bool                   `json:"stream,omitempty" mapstructure:"stream"`
	Filters          *AgentFilters          `json:"filters,omitempty" mapstructure:"filters"`
	Query            string                 `json:"query,omitempty" mapstructure:"query"`
	SearchFilters    *SearchFilters         `json:"search_filters,omitempty" mapstructure:"search_filters"`
	MessageID        string                 `json:"message_id,omitempty" mapstructure:"message_id"`
	RunIDs           []string               `json:"run_ids,omitempty" mapstructure:"run_ids"`
	ExportData       map[string]interface{} `json:"export_data,omitempty" mapstructure:"export_data"`
	UpdateData       map[string]interface{} `json:"update_data,omitempty" mapstructure:"update_data"`
	MaxMessageLength int                    `json:"max_message_length,omitempty" mapstructure:"max_message_length"`
}

func (r *AgentRequest) page() (letta.ListParams, error) {
	if r.Pagination != nil {
		return page(r.Pagination.Limit, r.Pagination.Offset)
	}
	return page(r.Limit, r.Offset)
}

// AgentResponse is the letta_agent_advanced envelope
type AgentResponse struct {
	Envelope
	Count   *int        `json:"count,omitempty"`
	AgentID string      `json:"agent_id,omitempty"`
	Outcome BulkOutcome `json:"outcome,omitempty"`
	Errors  []BulkItem  `json:"errors,omitempty"`
}

// AgentRouter serves letta_agent_advanced
type AgentRouter struct {
	*dispatcher[AgentOperation, AgentRequest]
	client letta.Client
}

var _ Router = (*AgentRouter)(nil)

// NewAgentRouter builds the router; it fails if any operation lacks a handler
func NewAgentRouter(client letta.Client, opts Options) (*AgentRouter, error) {
	r := &AgentRouter{client: client}
	routes := map[AgentOperation]route[AgentRequest]{
		AgentList:           {handle: r.list},
		AgentCreate:         {requires: need("name"), handle: r.create},
		AgentGet:            {requires: need("agent_id"), handle: r.get},
		AgentUpdate:         {requires: need("agent_id", "update_data"), handle: r.update},
		AgentDelete:         {requires: need("agent_id"), handle: r.delete},
		AgentListTools:      {requires: need("agent_id"), handle: r.listTools},
		AgentSendMessage:    {requires: need("agent_id", "messages"), handle: r.sendMessage},
		AgentExport:         {requires: need("agent_id"), handle: r.export},
		AgentImport:         {requires: need("export_data"), handle: r.importAgent},
		AgentClone:          {requires: need("agent_id", "name"), handle: r.clone},
		AgentGetConfig:      {requires: need("agent_id"), handle: r.getConfig},
		AgentBulkDelete:     {requires: need("filters"), handle: r.bulkDelete},
		AgentContext:        {requires: need("agent_id"), handle: r.contextWindow},
		AgentResetMessages:  {requires: need("agent_id"), handle: r.resetMessages},
		AgentSummarize:      {requires: need("agent_id"), handle: r.summarize},
		AgentStream:         {requires: need("agent_id", "messages"), handle: r.stream},
		AgentAsyncMessage:   {requires: need("agent_id", "messages"), handle: r.asyncMessage},
		AgentCancelMessage:  {requires: need("agent_id"), handle: r.cancelMessage},
		AgentPreviewPayload: {requires: need("agent_id", "messages"), handle: r.previewPayload},
		AgentSearchMessages: {requires: need("agent_id", "query"), handle: r.searchMessages},
		AgentGetMessage:     {requires: need("agent_id", "message_id"), handle: r.getMessage},
		AgentCount:          {handle: r.count},
	}

	d, err := newDispatcher(AgentToolName,
		"Advanced agent operations: CRUD (list, create, get, update, delete), tools (list_tools), messaging (send_message, stream, async_message, cancel_message, preview_payload, search_messages, get_message), management (export, import, clone, get_config, bulk_delete, count) and context (context, reset_messages, summarize).",
		AllAgentOperations, routes, opts)
	if err != nil {
		return nil, err
	}
	r.dispatcher = d
	return r, nil
}

func (r *AgentRouter) list(ctx context.Context, req *AgentRequest) (response, error) {
	p, err := req.page()
	if err != nil {
		return nil, err
	}
	agents, err := r.client.Agents().List(ctx, letta.ListAgentsParams{
		Name:   req.Name,
		Tags:   req.Tags,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &AgentResponse{
		Envelope: ok(fmt.Sprintf("Retrieved %d agents", len(agents)), nonNil(agents)),
		Count:    countOf(len(agents)),
	}, nil
}

func (r *AgentRouter) create(ctx context.Context, req *AgentRequest) (response, error) {
	if _, err := letta.ParseIDs("tool_ids", req.ToolIDs); err != nil {
		return nil, err
	}
	agent, err := r.client.Agents().Create(ctx, letta.CreateAgentRequest{
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		System:          req.System,
		LLMConfig:       req.LLMConfig,
		EmbeddingConfig: req.EmbeddingConfig,
		ToolIDs:         req.ToolIDs,
		Tags:            req.Tags,
	})
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Envelope: ok("Agent created successfully", agent), AgentID: agent.ID}, nil
}

func (r *AgentRouter) get(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Agents().Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Envelope: ok("Agent retrieved successfully", agent), AgentID: agent.ID}, nil
}

func (r *AgentRouter) update(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Agents().Update(ctx, agentID, req.UpdateData)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Envelope: ok("Agent updated successfully", agent), AgentID: agent.ID}, nil
}

func (r *AgentRouter) delete(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	if err := r.client.Agents().Delete(ctx, agentID); err != nil {
		return nil, err
	}
	return &AgentResponse{
		Envelope: ok(fmt.Sprintf("Agent %s deleted successfully", agentID), map[string]interface{}{"agent_id": agentID.String(), "deleted": true}),
		AgentID:  agentID.String(),
	}, nil
}

func (r *AgentRouter) listTools(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	tools, err := r.client.Agents().ListTools(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{
		Envelope: ok(fmt.Sprintf("Found %d tools attached to agent", len(tools)), nonNil(tools)),
		Count:    countOf(len(tools)),
		AgentID:  agentID.String(),
	}, nil
}

// messageRequest validates the caller's messages and builds the send body
func messageRequest(req *AgentRequest) (letta.SendMessageRequest, error) {
	for i, msg := range req.Messages {
		switch msg.Role {
		case "user", "system", "assistant":
		default:
			return letta.SendMessageRequest{}, mcperrors.NewInvalidPayloadError(
				fmt.Sprintf("messages[%d].role", i), "must be one of user, system, assistant", msg.Role)
		}
		if strings.TrimSpace(msg.Content) == "" {
			return letta.SendMessageRequest{}, mcperrors.NewMissingFieldError(fmt.Sprintf("messages[%d].content", i), string(req.Operation))
		}
	}
	return letta.SendMessageRequest{Messages: req.Messages}, nil
}

func (r *AgentRouter) sendMessage(ctx context.Context, req *AgentRequest) (response, error) {
	if req.Stream {
		return r.stream(ctx, req)
	}
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	body, err := messageRequest(req)
	if err != nil {
		return nil, err
	}
	reply, err := r.client.Messages().Send(ctx, agentID, body)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{
		Envelope: ok("Message sent successfully", reply),
		Count:    countOf(len(reply.Messages)),
		AgentID:  agentID.String(),
	}, nil
}

func (r *AgentRouter) stream(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	body, err := messageRequest(req)
	if err != nil {
		return nil, err
	}
	chunks, err := r.client.Messages().Stream(ctx, agentID, body)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{
		Envelope: ok(fmt.Sprintf("Streamed %d chunks", len(chunks)), nonNil(chunks)),
		Count:    countOf(len(chunks)),
		AgentID:  agentID.String(),
	}, nil
}

func (r *AgentRouter) asyncMessage(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	body, err := messageRequest(req)
	if err != nil {
		return nil, err
	}
	run, err := r.client.Messages().SendAsync(ctx, agentID, body)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{
		Envelope: ok(fmt.Sprintf("Async message queued as run %s", run.ID), run),
		AgentID:  agentID.String(),
	}, nil
}

func (r *AgentRouter) cancelMessage(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	runIDs, err := letta.ParseIDs("run_ids", req.RunIDs)
	if err != nil {
		return nil, err
	}
	result, err := r.client.Messages().Cancel(ctx, agentID, runIDs)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Envelope: ok("Cancellation requested", result), AgentID: agentID.String()}, nil
}

func (r *AgentRouter) previewPayload(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	body, err := messageRequest(req)
	if err != nil {
		return nil, err
	}
	preview, err := r.client.Messages().Preview(ctx, agentID, body)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Envelope: ok("Payload preview generated", preview), AgentID: agentID.String()}, nil
}

func (r *AgentRouter) searchMessages(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	p, err := req.page()
	if err != nil {
		return nil, err
	}
	search := letta.MessageSearchRequest{Query: req.Query, Limit: p.Limit}
	if f := req.SearchFilters; f != nil {
		search.Role, search.StartDate, search.EndDate = f.Role, f.StartDate, f.EndDate
	}
	messages, err := r.client.Messages().Search(ctx, agentID, search)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{
		Envelope: ok(fmt.Sprintf("Found %d messages", len(messages)), nonNil(messages)),
		Count:    countOf(len(messages)),
		AgentID:  agentID.String(),
	}, nil
}

func (r *AgentRouter) getMessage(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	messageID, err := letta.ParseID("message_id", req.MessageID)
	if err != nil {
		return nil, err
	}
	message, err := r.client.Messages().Get(ctx, agentID, messageID)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Envelope: ok("Message retrieved successfully", message), AgentID: agentID.String()}, nil
}

func (r *AgentRouter) export(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	export, err := r.client.Agents().Export(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Envelope: ok("Agent exported successfully", export), AgentID: agentID.String()}, nil
}

func (r *AgentRouter) importAgent(ctx context.Context, req *AgentRequest) (response, error) {
	agent, err := r.client.Agents().Import(ctx, letta.AgentExport(req.ExportData))
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Envelope: ok("Agent imported successfully", agent), AgentID: agent.ID}, nil
}

func (r *AgentRouter) clone(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)

	export, err := r.client.Agents().Export(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if err := renameExport(export, name); err != nil {
		return nil, err
	}
	agent, err := r.client.Agents().Import(ctx, export)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Envelope: ok(fmt.Sprintf("Agent cloned as %s", name), agent), AgentID: agent.ID}, nil
}

// renameExport sets the agent name in either export layout: a flat agent
// document or an agent file carrying an "agents" list
func renameExport(export letta.AgentExport, name string) error {
	if agents, isList := export["agents"].([]interface{}); isList {
		if len(agents) == 0 {
			return mcperrors.NewBackendError("agent export contains no agents", nil, nil)
		}
		first, isMap := agents[0].(map[string]interface{})
		if !isMap {
			return mcperrors.NewBackendError("agent export has an unexpected layout", nil, nil)
		}
		first["name"] = name
		return nil
	}
	export["name"] = name
	return nil
}

func (r *AgentRouter) getConfig(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Agents().Get(ctx, agentID)
	if err != nil {
		return nil, err
	}

	toolNames := make([]string, 0, len(agent.Tools))
	for _, tool := range agent.Tools {
		toolNames = append(toolNames, tool.Name)
	}
	config := map[string]interface{}{
		"id":               agent.ID,
		"name":             agent.Name,
		"description":      agent.Description,
		"system":           agent.System,
		"agent_type":       agent.AgentType,
		"llm_config":       agent.LLMConfig,
		"embedding_config": agent.EmbeddingConfig,
		"tags":             nonNil(agent.Tags),
		"tools":            toolNames,
		"metadata":         agent.Metadata,
	}
	return &AgentResponse{Envelope: ok("Agent configuration retrieved", config), AgentID: agent.ID}, nil
}

func (r *AgentRouter) bulkDelete(ctx context.Context, req *AgentRequest) (response, error) {
	targets, err := r.bulkTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	result := runBulk(ctx, targets, func(ctx context.Context, id letta.ID) (interface{}, error) {
		return nil, r.client.Agents().Delete(ctx, id)
	})
	r.metrics.RecordBulkItems(r.tool, string(AgentBulkDelete), len(result.Results), len(result.Errors))

	resp := &AgentResponse{
		Envelope: ok(fmt.Sprintf("Deleted %d agents, %d errors", len(result.Results), len(result.Errors)), result),
		Count:    countOf(len(result.Results)),
		Outcome:  result.Outcome,
		Errors:   result.Errors,
	}
	resp.Success = result.Succeeded()
	return resp, nil
}

// bulkTargets resolves bulk_delete filters to agent ids. Explicit ids win
// over name and tag filters.
func (r *AgentRouter) bulkTargets(ctx context.Context, req *AgentRequest) ([]letta.ID, error) {
	f := req.Filters
	if f == nil || (len(f.AgentIDs) == 0 && f.AgentNameFilter == "" && f.AgentTagFilter == "") {
		return nil, mcperrors.NewMissingFieldError("filters.agent_ids or filters.agent_name_filter or filters.agent_tag_filter", string(AgentBulkDelete))
	}
	if len(f.AgentIDs) > 0 {
		return letta.ParseIDs("filters.agent_ids", f.AgentIDs)
	}

	params := letta.ListAgentsParams{Name: f.AgentNameFilter, Limit: 100}
	if f.AgentTagFilter != "" {
		params.Tags = []string{f.AgentTagFilter}
	}
	var ids []letta.ID
	for {
		agents, err := r.client.Agents().List(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, agent := range agents {
			id, err := letta.ParseID("agent.id", agent.ID)
			if err != nil {
				return nil, mcperrors.NewBackendError("backend returned a malformed agent id", err, nil)
			}
			ids = append(ids, id)
		}
		if len(agents) < params.Limit {
			return ids, nil
		}
		params.Offset += params.Limit
	}
}

func (r *AgentRouter) contextWindow(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	window, err := r.client.Agents().Context(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Envelope: ok("Context window retrieved", window), AgentID: agentID.String()}, nil
}

func (r *AgentRouter) resetMessages(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	agent, err := r.client.Messages().Reset(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{Envelope: ok(fmt.Sprintf("Messages reset for agent %s", agentID), agent), AgentID: agentID.String()}, nil
}

func (r *AgentRouter) summarize(ctx context.Context, req *AgentRequest) (response, error) {
	agentID, err := letta.ParseID("agent_id", req.AgentID)
	if err != nil {
		return nil, err
	}
	if req.MaxMessageLength < 0 {
		return nil, mcperrors.NewInvalidPayloadError("max_message_length", "must not be negative", req.MaxMessageLength)
	}
	if err := r.client.Messages().Summarize(ctx, agentID, req.MaxMessageLength); err != nil {
		return nil, err
	}
	return &AgentResponse{
		Envelope: ok("Conversation summarized", map[string]interface{}{"agent_id": agentID.String(), "summarized": true}),
		AgentID:  agentID.String(),
	}, nil
}

func (r *AgentRouter) count(ctx context.Context, _ *AgentRequest) (response, error) {
	n, err := r.client.Agents().Count(ctx)
	if err != nil {
		return nil, err
	}
	return &AgentResponse{
		Envelope: ok(fmt.Sprintf("Total agents: %d", n), map[string]interface{}{"count": n}),
		Count:    countOf(n),
	}, nil
}

// nonNil keeps empty lists serialized as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
