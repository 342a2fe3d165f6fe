package lettatest

import (
	"encoding/json"
	"fmt"
	"io"
	"letta-mcp-server/internal/letta"
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/mux"
)

func (s *Server) routes(r *mux.Router) {
	v1 := r.PathPrefix("/v1").Subrouter()

	// agents
	v1.HandleFunc("/agents/", s.listAgents).Methods(http.MethodGet)
	v1.HandleFunc("/agents/", s.createAgentHandler).Methods(http.MethodPost)
	v1.HandleFunc("/agents/count", s.countAgents).Methods(http.MethodGet)
	v1.HandleFunc("/agents/import", s.importAgent).Methods(http.MethodPost)
	v1.HandleFunc("/agents/{agent_id}", s.getAgent).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}", s.updateAgent).Methods(http.MethodPatch)
	v1.HandleFunc("/agents/{agent_id}", s.deleteAgentHandler).Methods(http.MethodDelete)
	v1.HandleFunc("/agents/{agent_id}/export", s.exportAgent).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}/context", s.agentContext).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}/tools", s.listAgentTools).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}/tools/{action:attach|detach}/{tool_id}", s.toggleAgentTool).Methods(http.MethodPatch)
	v1.HandleFunc("/agents/{agent_id}/sources", s.listAgentSources).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}/sources/{action:attach|detach}/{source_id}", s.toggleAgentSource).Methods(http.MethodPatch)
	v1.HandleFunc("/agents/{agent_id}/folders/{action:attach|detach}/{folder_id}", s.toggleAgentFolder).Methods(http.MethodPatch)

	// messages
	v1.HandleFunc("/agents/{agent_id}/messages", s.sendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/agents/{agent_id}/messages/stream", s.streamMessage).Methods(http.MethodPost)
	v1.HandleFunc("/agents/{agent_id}/messages/async", s.asyncMessage).Methods(http.MethodPost)
	v1.HandleFunc("/agents/{agent_id}/messages/cancel", s.cancelMessage).Methods(http.MethodPost)
	v1.HandleFunc("/agents/{agent_id}/messages/preview-raw-payload", s.previewMessage).Methods(http.MethodPost)
	v1.HandleFunc("/agents/{agent_id}/messages/search", s.searchMessages).Methods(http.MethodPost)
	v1.HandleFunc("/agents/{agent_id}/messages/{message_id}", s.getMessage).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}/reset-messages", s.resetMessages).Methods(http.MethodPatch)
	v1.HandleFunc("/agents/{agent_id}/summarize", s.summarize).Methods(http.MethodPost)

	// core memory and archival memory
	v1.HandleFunc("/agents/{agent_id}/core-memory", s.coreMemory).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}/core-memory/blocks", s.listCoreBlocks).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}/core-memory/blocks/{action:attach|detach}/{block_id}", s.toggleAgentBlock).Methods(http.MethodPatch)
	v1.HandleFunc("/agents/{agent_id}/core-memory/blocks/{label}", s.getCoreBlock).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}/core-memory/blocks/{label}", s.updateCoreBlock).Methods(http.MethodPatch)
	v1.HandleFunc("/agents/{agent_id}/archival-memory", s.listPassages).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}/archival-memory", s.createPassage).Methods(http.MethodPost)
	v1.HandleFunc("/agents/{agent_id}/archival-memory/{passage_id}", s.updatePassage).Methods(http.MethodPatch)
	v1.HandleFunc("/agents/{agent_id}/archival-memory/{passage_id}", s.deletePassage).Methods(http.MethodDelete)

	// agent files
	v1.HandleFunc("/agents/{agent_id}/files", s.listAgentFiles).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{agent_id}/files/close-all", s.closeAllFiles).Methods(http.MethodPatch)
	v1.HandleFunc("/agents/{agent_id}/files/{file_id}/{action:open|close}", s.toggleFile).Methods(http.MethodPatch)

	// blocks
	v1.HandleFunc("/blocks/", s.listBlocks).Methods(http.MethodGet)
	v1.HandleFunc("/blocks/", s.createBlockHandler).Methods(http.MethodPost)
	v1.HandleFunc("/blocks/{block_id}", s.getBlock).Methods(http.MethodGet)
	v1.HandleFunc("/blocks/{block_id}", s.updateBlock).Methods(http.MethodPatch)
	v1.HandleFunc("/blocks/{block_id}/agents", s.listBlockAgents).Methods(http.MethodGet)

	// external tool servers, registered before /tools/{tool_id}
	v1.HandleFunc("/tools/mcp/servers", s.listMCPServers).Methods(http.MethodGet)
	v1.HandleFunc("/tools/mcp/servers", s.addMCPServer).Methods(http.MethodPut)
	v1.HandleFunc("/tools/mcp/servers/test", s.testMCPServer).Methods(http.MethodPost)
	v1.HandleFunc("/tools/mcp/servers/{name}", s.updateMCPServer).Methods(http.MethodPatch)
	v1.HandleFunc("/tools/mcp/servers/{name}", s.deleteMCPServer).Methods(http.MethodDelete)
	v1.HandleFunc("/tools/mcp/servers/{name}/tools", s.listMCPTools).Methods(http.MethodGet)
	v1.HandleFunc("/tools/mcp/servers/{name}/{tool}", s.registerMCPTool).Methods(http.MethodPost)

	// tools
	v1.HandleFunc("/tools/", s.listTools).Methods(http.MethodGet)
	v1.HandleFunc("/tools/", s.createTool).Methods(http.MethodPost)
	v1.HandleFunc("/tools/", s.upsertTool).Methods(http.MethodPut)
	v1.HandleFunc("/tools/run", s.runTool).Methods(http.MethodPost)
	v1.HandleFunc("/tools/add-base-tools", s.addBaseTools).Methods(http.MethodPost)
	v1.HandleFunc("/tools/{tool_id}", s.getTool).Methods(http.MethodGet)
	v1.HandleFunc("/tools/{tool_id}", s.updateTool).Methods(http.MethodPatch)
	v1.HandleFunc("/tools/{tool_id}", s.deleteTool).Methods(http.MethodDelete)

	// sources
	v1.HandleFunc("/sources/", s.listSources).Methods(http.MethodGet)
	v1.HandleFunc("/sources/", s.createSourceHandler).Methods(http.MethodPost)
	v1.HandleFunc("/sources/count", s.countSources).Methods(http.MethodGet)
	v1.HandleFunc("/sources/{source_id}", s.getSource).Methods(http.MethodGet)
	v1.HandleFunc("/sources/{source_id}", s.updateSource).Methods(http.MethodPatch)
	v1.HandleFunc("/sources/{source_id}", s.deleteSource).Methods(http.MethodDelete)
	v1.HandleFunc("/sources/{source_id}/upload", s.uploadFile).Methods(http.MethodPost)
	v1.HandleFunc("/sources/{source_id}/files", s.listSourceFiles).Methods(http.MethodGet)
	v1.HandleFunc("/sources/{source_id}/agents", s.listSourceAgents).Methods(http.MethodGet)
	v1.HandleFunc("/sources/{source_id}/{file_id}", s.deleteSourceFile).Methods(http.MethodDelete)

	// folders share storage with sources
	v1.HandleFunc("/folders/", s.listFolders).Methods(http.MethodGet)
	v1.HandleFunc("/folders/{source_id}/files", s.listSourceFiles).Methods(http.MethodGet)
	v1.HandleFunc("/folders/{source_id}/agents", s.listFolderAgents).Methods(http.MethodGet)

	// jobs
	v1.HandleFunc("/jobs/", s.listJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/active", s.listActiveJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{job_id}", s.getJob).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{job_id}/cancel", s.cancelJob).Methods(http.MethodPatch)
}

// withAgent resolves {agent_id} and runs fn with the lock held
func (s *Server) withAgent(w http.ResponseWriter, r *http.Request, fn func(agentID string)) {
	agentID := mux.Vars(r)["agent_id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agentID]; !ok {
		notFound(w, "agent", agentID)
		return
	}
	fn(agentID)
}

// agents

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, tags := q.Get("name"), q["tags"]

	s.mu.Lock()
	defer s.mu.Unlock()
	agents := []letta.Agent{}
	for _, id := range s.agentOrder {
		agent := s.agents[id]
		if name != "" && agent.Name != name {
			continue
		}
		if !hasAllTags(agent.Tags, tags) {
			continue
		}
		agents = append(agents, s.agentView(id))
	}
	writeJSON(w, http.StatusOK, page(agents, r))
}

func (s *Server) createAgentHandler(w http.ResponseWriter, r *http.Request) {
	var req letta.CreateAgentRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	agent := s.createAgent(req)
	writeJSON(w, http.StatusOK, s.agentView(agent.ID))
}

func (s *Server) countAgents(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, len(s.agents))
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		writeJSON(w, http.StatusOK, s.agentView(agentID))
	})
}

func (s *Server) updateAgent(w http.ResponseWriter, r *http.Request) {
	var patch map[string]interface{}
	if !decode(w, r, &patch) {
		return
	}
	s.withAgent(w, r, func(agentID string) {
		delete(patch, "id")
		if err := mergePatch(s.agents[agentID], patch); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.agents[agentID].UpdatedAt = timestamp()
		writeJSON(w, http.StatusOK, s.agentView(agentID))
	})
}

func (s *Server) deleteAgentHandler(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		s.deleteAgent(agentID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Agent " + agentID + " deleted"})
	})
}

func (s *Server) exportAgent(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		agent := s.agentView(agentID)
		export := map[string]interface{}{
			"name":        agent.Name,
			"description": agent.Description,
			"system":      agent.System,
			"agent_type":  agent.AgentType,
			"tags":        agent.Tags,
			"tool_ids":    s.agentTools[agentID],
			"version":     "0.1.0",
		}
		writeJSON(w, http.StatusOK, export)
	})
}

func (s *Server) importAgent(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	var req letta.CreateAgentRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid agent export")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	agent := s.createAgent(req)
	writeJSON(w, http.StatusOK, s.agentView(agent.ID))
}

func (s *Server) agentContext(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"context_window_size_max":          8192,
			"num_messages":                     len(s.messages[agentID]),
			"num_archival_memory":              len(s.passages[agentID]),
			"num_recall_memory":                len(s.messages[agentID]),
			"num_tokens_core_memory":           len(s.coreBlocks(agentID)) * 100,
			"num_tokens_functions_definitions": len(s.agentTools[agentID]) * 50,
		})
	})
}

func (s *Server) listAgentTools(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		writeJSON(w, http.StatusOK, nonNil(s.agentView(agentID).Tools))
	})
}

func (s *Server) toggleAgentTool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.withAgent(w, r, func(agentID string) {
		toolID := vars["tool_id"]
		if _, ok := s.tools[toolID]; !ok {
			notFound(w, "tool", toolID)
			return
		}
		if vars["action"] == "attach" {
			s.agentTools[agentID] = appendUnique(s.agentTools[agentID], toolID)
		} else {
			s.agentTools[agentID] = without(s.agentTools[agentID], toolID)
		}
		writeJSON(w, http.StatusOK, s.agentView(agentID))
	})
}

func (s *Server) listAgentSources(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		sources := []letta.Source{}
		for _, id := range s.agentSources[agentID] {
			if source, ok := s.sources[id]; ok {
				sources = append(sources, *source)
			}
		}
		writeJSON(w, http.StatusOK, sources)
	})
}

func (s *Server) toggleAgentSource(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.withAgent(w, r, func(agentID string) {
		sourceID := vars["source_id"]
		if _, ok := s.sources[sourceID]; !ok {
			notFound(w, "source", sourceID)
			return
		}
		if vars["action"] == "attach" {
			s.agentSources[agentID] = appendUnique(s.agentSources[agentID], sourceID)
		} else {
			s.agentSources[agentID] = without(s.agentSources[agentID], sourceID)
		}
		writeJSON(w, http.StatusOK, s.agentView(agentID))
	})
}

func (s *Server) toggleAgentFolder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.withAgent(w, r, func(agentID string) {
		folderID := vars["folder_id"]
		if _, ok := s.sources[folderID]; !ok {
			notFound(w, "folder", folderID)
			return
		}
		if vars["action"] == "attach" {
			s.agentFolders[agentID] = appendUnique(s.agentFolders[agentID], folderID)
		} else {
			s.agentFolders[agentID] = without(s.agentFolders[agentID], folderID)
			s.closeFolderFiles(agentID, folderID)
		}
		writeJSON(w, http.StatusOK, s.agentView(agentID))
	})
}

func (s *Server) closeFolderFiles(agentID, folderID string) {
	for _, f := range s.sourceFiles[folderID] {
		s.openFiles[agentID] = without(s.openFiles[agentID], f.ID)
	}
}

// messages

func (s *Server) reply(agentID string, req letta.SendMessageRequest) []letta.Message {
	var replies []letta.Message
	for _, in := range req.Messages {
		role := in.Role
		if role == "" {
			role = "user"
		}
		s.messages[agentID] = append(s.messages[agentID], letta.Message{
			ID: letta.NewID("message").String(), MessageType: role + "_message",
			Role: role, Content: in.Content, Date: timestamp(),
		})
		out := letta.Message{
			ID: letta.NewID("message").String(), MessageType: "assistant_message",
			Role: "assistant", Content: "echo: " + in.Content, Date: timestamp(),
		}
		s.messages[agentID] = append(s.messages[agentID], out)
		replies = append(replies, out)
	}
	return replies
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req letta.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	s.withAgent(w, r, func(agentID string) {
		replies := s.reply(agentID, req)
		writeJSON(w, http.StatusOK, letta.LettaResponse{
			Messages:   replies,
			StopReason: map[string]interface{}{"stop_reason": "end_turn"},
			Usage:      map[string]interface{}{"step_count": 1, "total_tokens": 42},
		})
	})
}

func (s *Server) streamMessage(w http.ResponseWriter, r *http.Request) {
	var req letta.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	s.withAgent(w, r, func(agentID string) {
		replies := s.reply(agentID, req)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, msg := range replies {
			encoded, _ := json.Marshal(msg)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", encoded)
		}
		_, _ = fmt.Fprint(w, "data: {\"message_type\":\"usage_statistics\",\"step_count\":1}\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})
}

func (s *Server) asyncMessage(w http.ResponseWriter, r *http.Request) {
	var req letta.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	s.withAgent(w, r, func(agentID string) {
		job := s.createJob("run", "created", map[string]interface{}{"agent_id": agentID})
		writeJSON(w, http.StatusOK, letta.Run{ID: job.ID, Status: job.Status, AgentID: agentID, CreatedAt: job.CreatedAt})
	})
}

func (s *Server) cancelMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RunIDs []string `json:"run_ids"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.withAgent(w, r, func(string) {
		result := map[string]interface{}{}
		for _, id := range body.RunIDs {
			result[id] = "cancelled"
		}
		writeJSON(w, http.StatusOK, result)
	})
}

func (s *Server) previewMessage(w http.ResponseWriter, r *http.Request) {
	var req letta.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	s.withAgent(w, r, func(agentID string) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"model":    "letta-fake",
			"system":   s.agents[agentID].System,
			"messages": req.Messages,
		})
	})
}

func (s *Server) searchMessages(w http.ResponseWriter, r *http.Request) {
	var req letta.MessageSearchRequest
	if !decode(w, r, &req) {
		return
	}
	s.withAgent(w, r, func(agentID string) {
		query := strings.ToLower(req.Query)
		found := []letta.Message{}
		for _, msg := range s.messages[agentID] {
			text, _ := msg.Content.(string)
			if req.Role != "" && msg.Role != req.Role {
				continue
			}
			if strings.Contains(strings.ToLower(text), query) {
				found = append(found, msg)
			}
		}
		if req.Limit > 0 && len(found) > req.Limit {
			found = found[:req.Limit]
		}
		writeJSON(w, http.StatusOK, found)
	})
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["message_id"]
	s.withAgent(w, r, func(agentID string) {
		for _, msg := range s.messages[agentID] {
			if msg.ID == messageID {
				writeJSON(w, http.StatusOK, msg)
				return
			}
		}
		notFound(w, "message", messageID)
	})
}

func (s *Server) resetMessages(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		delete(s.messages, agentID)
		writeJSON(w, http.StatusOK, s.agentView(agentID))
	})
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		if msgs := s.messages[agentID]; len(msgs) > 2 {
			s.messages[agentID] = msgs[len(msgs)-2:]
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// memory

func (s *Server) coreMemory(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		writeJSON(w, http.StatusOK, letta.Memory{Blocks: s.coreBlocks(agentID), Prompt: "{% for block in blocks %}{{ block.value }}{% endfor %}"})
	})
}

func (s *Server) listCoreBlocks(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		writeJSON(w, http.StatusOK, s.coreBlocks(agentID))
	})
}

func (s *Server) coreBlockByLabel(agentID, label string) *letta.Block {
	for _, blockID := range s.agentBlocks[agentID] {
		if block, ok := s.blocks[blockID]; ok && block.Label == label {
			return block
		}
	}
	return nil
}

func (s *Server) getCoreBlock(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]
	s.withAgent(w, r, func(agentID string) {
		block := s.coreBlockByLabel(agentID, label)
		if block == nil {
			notFound(w, "block", label)
			return
		}
		writeJSON(w, http.StatusOK, block)
	})
}

func (s *Server) updateCoreBlock(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]
	var patch map[string]interface{}
	if !decode(w, r, &patch) {
		return
	}
	s.withAgent(w, r, func(agentID string) {
		block := s.coreBlockByLabel(agentID, label)
		if block == nil {
			notFound(w, "block", label)
			return
		}
		s.patchBlock(w, block, patch)
	})
}

func (s *Server) patchBlock(w http.ResponseWriter, block *letta.Block, patch map[string]interface{}) {
	delete(patch, "id")
	if value, ok := patch["value"].(string); ok && block.Limit > 0 && len(value) > block.Limit {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("value exceeds block limit of %d characters", block.Limit))
		return
	}
	if err := mergePatch(block, patch); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (s *Server) toggleAgentBlock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.withAgent(w, r, func(agentID string) {
		blockID := vars["block_id"]
		if _, ok := s.blocks[blockID]; !ok {
			notFound(w, "block", blockID)
			return
		}
		if vars["action"] == "attach" {
			s.agentBlocks[agentID] = appendUnique(s.agentBlocks[agentID], blockID)
		} else {
			s.agentBlocks[agentID] = without(s.agentBlocks[agentID], blockID)
		}
		writeJSON(w, http.StatusOK, s.agentView(agentID))
	})
}

func (s *Server) listPassages(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(r.URL.Query().Get("search"))
	s.withAgent(w, r, func(agentID string) {
		passages := []letta.Passage{}
		for _, p := range s.passages[agentID] {
			if search == "" || strings.Contains(strings.ToLower(p.Text), search) {
				passages = append(passages, p)
			}
		}
		writeJSON(w, http.StatusOK, page(passages, r))
	})
}

func (s *Server) createPassage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.withAgent(w, r, func(agentID string) {
		passage := letta.Passage{ID: letta.NewID("passage").String(), Text: body.Text, AgentID: agentID, CreatedAt: timestamp()}
		s.passages[agentID] = append(s.passages[agentID], passage)
		writeJSON(w, http.StatusOK, []letta.Passage{passage})
	})
}

func (s *Server) updatePassage(w http.ResponseWriter, r *http.Request) {
	passageID := mux.Vars(r)["passage_id"]
	var body struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.withAgent(w, r, func(agentID string) {
		for i, p := range s.passages[agentID] {
			if p.ID == passageID {
				s.passages[agentID][i].Text = body.Text
				writeJSON(w, http.StatusOK, []letta.Passage{s.passages[agentID][i]})
				return
			}
		}
		notFound(w, "passage", passageID)
	})
}

func (s *Server) deletePassage(w http.ResponseWriter, r *http.Request) {
	passageID := mux.Vars(r)["passage_id"]
	s.withAgent(w, r, func(agentID string) {
		for i, p := range s.passages[agentID] {
			if p.ID == passageID {
				s.passages[agentID] = append(s.passages[agentID][:i], s.passages[agentID][i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		notFound(w, "passage", passageID)
	})
}

// agent files

func (s *Server) listAgentFiles(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		files := []letta.AgentFile{}
		for _, folderID := range s.agentFolders[agentID] {
			folder := s.sources[folderID]
			for _, f := range s.sourceFiles[folderID] {
				files = append(files, letta.AgentFile{
					ID:         letta.NewID("file_agent").String(),
					FileID:     f.ID,
					FileName:   f.FileName,
					FolderID:   folderID,
					FolderName: folder.Name,
					IsOpen:     contains(s.openFiles[agentID], f.ID),
				})
			}
		}
		writeJSON(w, http.StatusOK, files)
	})
}

func (s *Server) toggleFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.withAgent(w, r, func(agentID string) {
		fileID := vars["file_id"]
		if _, ok := s.findFile(fileID); !ok {
			notFound(w, "file", fileID)
			return
		}
		if vars["action"] == "close" {
			s.openFiles[agentID] = without(s.openFiles[agentID], fileID)
			writeJSON(w, http.StatusOK, map[string]string{"message": "file closed"})
			return
		}

		open := without(s.openFiles[agentID], fileID)
		evicted := []string{}
		for len(open) >= s.maxOpenFiles && len(open) > 0 {
			if f, ok := s.findFile(open[0]); ok {
				evicted = append(evicted, f.FileName)
			}
			open = open[1:]
		}
		s.openFiles[agentID] = append(open, fileID)
		writeJSON(w, http.StatusOK, evicted)
	})
}

func (s *Server) closeAllFiles(w http.ResponseWriter, r *http.Request) {
	s.withAgent(w, r, func(agentID string) {
		closed := []string{}
		for _, fileID := range s.openFiles[agentID] {
			if f, ok := s.findFile(fileID); ok {
				closed = append(closed, f.FileName)
			}
		}
		delete(s.openFiles, agentID)
		writeJSON(w, http.StatusOK, closed)
	})
}

// blocks

func (s *Server) listBlocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	label, templates := q.Get("label"), q.Get("templates_only")

	s.mu.Lock()
	defer s.mu.Unlock()
	blocks := []letta.Block{}
	for _, id := range s.blockOrder {
		block := s.blocks[id]
		if label != "" && block.Label != label {
			continue
		}
		if templates == "true" && !block.IsTemplate {
			continue
		}
		blocks = append(blocks, *block)
	}
	writeJSON(w, http.StatusOK, page(blocks, r))
}

func (s *Server) createBlockHandler(w http.ResponseWriter, r *http.Request) {
	var req letta.CreateBlockRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusUnprocessableEntity, "label is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.createBlock(req))
}

func (s *Server) withBlock(w http.ResponseWriter, r *http.Request, fn func(block *letta.Block)) {
	blockID := mux.Vars(r)["block_id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.blocks[blockID]
	if !ok {
		notFound(w, "block", blockID)
		return
	}
	fn(block)
}

func (s *Server) getBlock(w http.ResponseWriter, r *http.Request) {
	s.withBlock(w, r, func(block *letta.Block) { writeJSON(w, http.StatusOK, block) })
}

func (s *Server) updateBlock(w http.ResponseWriter, r *http.Request) {
	var patch map[string]interface{}
	if !decode(w, r, &patch) {
		return
	}
	s.withBlock(w, r, func(block *letta.Block) { s.patchBlock(w, block, patch) })
}

func (s *Server) listBlockAgents(w http.ResponseWriter, r *http.Request) {
	s.withBlock(w, r, func(block *letta.Block) {
		agents := []letta.Agent{}
		for _, agentID := range s.agentOrder {
			if contains(s.agentBlocks[agentID], block.ID) {
				agents = append(agents, s.agentView(agentID))
			}
		}
		writeJSON(w, http.StatusOK, agents)
	})
}

// external tool servers

func (s *Server) listMCPServers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.mcpServers)
}

func (s *Server) serverList() []letta.MCPServerConfig {
	servers := []letta.MCPServerConfig{}
	for _, name := range sortedKeys(s.mcpServers) {
		servers = append(servers, s.mcpServers[name])
	}
	return servers
}

func (s *Server) addMCPServer(w http.ResponseWriter, r *http.Request) {
	var cfg letta.MCPServerConfig
	if !decode(w, r, &cfg) {
		return
	}
	name, _ := cfg["server_name"].(string)
	if name == "" {
		writeError(w, http.StatusUnprocessableEntity, "server_name is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mcpServers[name] = cfg
	writeJSON(w, http.StatusOK, s.serverList())
}

func (s *Server) testMCPServer(w http.ResponseWriter, r *http.Request) {
	var cfg letta.MCPServerConfig
	if !decode(w, r, &cfg) {
		return
	}
	name, _ := cfg["server_name"].(string)
	if name == "" {
		writeError(w, http.StatusUnprocessableEntity, "server_name is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"tools":  nonNil(s.mcpTools[name]),
	})
}

func (s *Server) withMCPServer(w http.ResponseWriter, r *http.Request, fn func(name string)) {
	name := mux.Vars(r)["name"]
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mcpServers[name]; !ok {
		notFound(w, "mcp server", name)
		return
	}
	fn(name)
}

func (s *Server) updateMCPServer(w http.ResponseWriter, r *http.Request) {
	var patch letta.MCPServerConfig
	if !decode(w, r, &patch) {
		return
	}
	s.withMCPServer(w, r, func(name string) {
		for k, v := range patch {
			s.mcpServers[name][k] = v
		}
		s.mcpServers[name]["server_name"] = name
		writeJSON(w, http.StatusOK, s.mcpServers[name])
	})
}

func (s *Server) deleteMCPServer(w http.ResponseWriter, r *http.Request) {
	s.withMCPServer(w, r, func(name string) {
		delete(s.mcpServers, name)
		delete(s.mcpTools, name)
		writeJSON(w, http.StatusOK, s.serverList())
	})
}

func (s *Server) listMCPTools(w http.ResponseWriter, r *http.Request) {
	s.withMCPServer(w, r, func(name string) {
		writeJSON(w, http.StatusOK, nonNil(s.mcpTools[name]))
	})
}

func (s *Server) registerMCPTool(w http.ResponseWriter, r *http.Request) {
	toolName := mux.Vars(r)["tool"]
	s.withMCPServer(w, r, func(name string) {
		for _, t := range s.mcpTools[name] {
			if t.Name != toolName {
				continue
			}
			if existing := s.toolByName(t.Name); existing != nil {
				writeJSON(w, http.StatusOK, existing)
				return
			}
			tool := s.storeTool(letta.Tool{
				Name:        t.Name,
				Description: t.Description,
				ToolType:    "external_mcp",
				Tags:        []string{"mcp:" + name},
				JSONSchema:  t.Schema(),
			})
			writeJSON(w, http.StatusOK, tool)
			return
		}
		notFound(w, "mcp tool", toolName)
	})
}

// tools

var functionName = regexp.MustCompile(`(?m)^\s*(?:async\s+)?(?:def|function)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

func toolFromRequest(req letta.ToolCreateRequest) (letta.Tool, bool) {
	match := functionName.FindStringSubmatch(req.SourceCode)
	if match == nil {
		return letta.Tool{}, false
	}
	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = "python"
	}
	return letta.Tool{
		Name:            match[1],
		Description:     req.Description,
		SourceCode:      req.SourceCode,
		SourceType:      sourceType,
		Tags:            req.Tags,
		JSONSchema:      req.JSONSchema,
		ArgsJSONSchema:  req.ArgsJSONSchema,
		ReturnCharLimit: req.ReturnCharLimit,
		PipRequirements: req.PipRequirements,
	}, true
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tools := []letta.Tool{}
	for _, id := range s.toolOrder {
		tools = append(tools, *s.tools[id])
	}
	writeJSON(w, http.StatusOK, page(tools, r))
}

func (s *Server) createTool(w http.ResponseWriter, r *http.Request) {
	var req letta.ToolCreateRequest
	if !decode(w, r, &req) {
		return
	}
	tool, ok := toolFromRequest(req)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "could not find a function definition in source_code")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.toolByName(tool.Name) != nil {
		writeError(w, http.StatusConflict, "tool "+tool.Name+" already exists")
		return
	}
	writeJSON(w, http.StatusOK, s.storeTool(tool))
}

func (s *Server) upsertTool(w http.ResponseWriter, r *http.Request) {
	var req letta.ToolCreateRequest
	if !decode(w, r, &req) {
		return
	}
	tool, ok := toolFromRequest(req)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "could not find a function definition in source_code")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.toolByName(tool.Name); existing != nil {
		tool.ID = existing.ID
	}
	writeJSON(w, http.StatusOK, s.storeTool(tool))
}

func (s *Server) runTool(w http.ResponseWriter, r *http.Request) {
	var req letta.ToolRunRequest
	if !decode(w, r, &req) {
		return
	}
	tool, ok := toolFromRequest(letta.ToolCreateRequest{SourceCode: req.SourceCode, SourceType: req.SourceType})
	if !ok {
		writeJSON(w, http.StatusOK, letta.ToolReturn{Status: "error", Stderr: []string{"no function definition found"}})
		return
	}
	encoded, _ := json.Marshal(req.Args)
	writeJSON(w, http.StatusOK, letta.ToolReturn{
		Status:     "success",
		ToolReturn: fmt.Sprintf("%s(%s)", tool.Name, encoded),
		Stdout:     []string{},
	})
}

var baseTools = []string{"send_message", "conversation_search", "archival_memory_insert", "archival_memory_search"}

func (s *Server) addBaseTools(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tools := []letta.Tool{}
	for _, name := range baseTools {
		tool := s.toolByName(name)
		if tool == nil {
			tool = s.storeTool(letta.Tool{Name: name, ToolType: "letta_core", SourceType: "python"})
		}
		tools = append(tools, *tool)
	}
	writeJSON(w, http.StatusOK, tools)
}

func (s *Server) withTool(w http.ResponseWriter, r *http.Request, fn func(tool *letta.Tool)) {
	toolID := mux.Vars(r)["tool_id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	tool, ok := s.tools[toolID]
	if !ok {
		notFound(w, "tool", toolID)
		return
	}
	fn(tool)
}

func (s *Server) getTool(w http.ResponseWriter, r *http.Request) {
	s.withTool(w, r, func(tool *letta.Tool) { writeJSON(w, http.StatusOK, tool) })
}

func (s *Server) updateTool(w http.ResponseWriter, r *http.Request) {
	var patch map[string]interface{}
	if !decode(w, r, &patch) {
		return
	}
	s.withTool(w, r, func(tool *letta.Tool) {
		delete(patch, "id")
		if err := mergePatch(tool, patch); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, tool)
	})
}

func (s *Server) deleteTool(w http.ResponseWriter, r *http.Request) {
	s.withTool(w, r, func(tool *letta.Tool) {
		delete(s.tools, tool.ID)
		s.toolOrder = without(s.toolOrder, tool.ID)
		for agentID := range s.agentTools {
			s.agentTools[agentID] = without(s.agentTools[agentID], tool.ID)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// sources and folders

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sources := []letta.Source{}
	for _, id := range s.sourceOrder {
		sources = append(sources, *s.sources[id])
	}
	writeJSON(w, http.StatusOK, page(sources, r))
}

func (s *Server) createSourceHandler(w http.ResponseWriter, r *http.Request) {
	var req letta.CreateSourceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.createSource(req))
}

func (s *Server) countSources(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, len(s.sources))
}

func (s *Server) withSource(w http.ResponseWriter, r *http.Request, fn func(source *letta.Source)) {
	sourceID := mux.Vars(r)["source_id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.sources[sourceID]
	if !ok {
		notFound(w, "source", sourceID)
		return
	}
	fn(source)
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	s.withSource(w, r, func(source *letta.Source) { writeJSON(w, http.StatusOK, source) })
}

func (s *Server) updateSource(w http.ResponseWriter, r *http.Request) {
	var patch map[string]interface{}
	if !decode(w, r, &patch) {
		return
	}
	s.withSource(w, r, func(source *letta.Source) {
		delete(patch, "id")
		if err := mergePatch(source, patch); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, source)
	})
}

func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	s.withSource(w, r, func(source *letta.Source) {
		delete(s.sources, source.ID)
		delete(s.sourceFiles, source.ID)
		s.sourceOrder = without(s.sourceOrder, source.ID)
		for agentID := range s.agentSources {
			s.agentSources[agentID] = without(s.agentSources[agentID], source.ID)
		}
		for agentID := range s.agentFolders {
			s.agentFolders[agentID] = without(s.agentFolders[agentID], source.ID)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.withSource(w, r, func(source *letta.Source) {
		meta := s.addFile(source.ID, header.Filename, data)
		job := s.createJob("job", "completed", map[string]interface{}{
			"source_id": source.ID,
			"file_id":   meta.ID,
			"file_name": meta.FileName,
		})
		writeJSON(w, http.StatusOK, job)
	})
}

func (s *Server) listSourceFiles(w http.ResponseWriter, r *http.Request) {
	includeContent := r.URL.Query().Get("include_content") == "true"
	s.withSource(w, r, func(source *letta.Source) {
		files := []letta.FileMetadata{}
		for _, f := range s.sourceFiles[source.ID] {
			if !includeContent {
				f.Content = ""
			}
			files = append(files, f)
		}
		writeJSON(w, http.StatusOK, page(files, r))
	})
}

func (s *Server) listSourceAgents(w http.ResponseWriter, r *http.Request) {
	s.withSource(w, r, func(source *letta.Source) {
		ids := []string{}
		for _, agentID := range s.agentOrder {
			if contains(s.agentSources[agentID], source.ID) {
				ids = append(ids, agentID)
			}
		}
		writeJSON(w, http.StatusOK, ids)
	})
}

func (s *Server) deleteSourceFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["file_id"]
	s.withSource(w, r, func(source *letta.Source) {
		for i, f := range s.sourceFiles[source.ID] {
			if f.ID == fileID {
				s.sourceFiles[source.ID] = append(s.sourceFiles[source.ID][:i], s.sourceFiles[source.ID][i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		notFound(w, "file", fileID)
	})
}

func (s *Server) listFolders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	folders := []letta.Folder{}
	for _, id := range s.sourceOrder {
		src := s.sources[id]
		folders = append(folders, letta.Folder{ID: src.ID, Name: src.Name, Description: src.Description, CreatedAt: src.CreatedAt})
	}
	writeJSON(w, http.StatusOK, page(folders, r))
}

func (s *Server) listFolderAgents(w http.ResponseWriter, r *http.Request) {
	s.withSource(w, r, func(source *letta.Source) {
		ids := []string{}
		for _, agentID := range s.agentOrder {
			if contains(s.agentFolders[agentID], source.ID) {
				ids = append(ids, agentID)
			}
		}
		writeJSON(w, http.StatusOK, ids)
	})
}

// jobs

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := []letta.Job{}
	for _, id := range s.jobOrder {
		jobs = append(jobs, *s.jobs[id])
	}
	writeJSON(w, http.StatusOK, page(jobs, r))
}

func (s *Server) listActiveJobs(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := []letta.Job{}
	for _, id := range s.jobOrder {
		switch s.jobs[id].Status {
		case "created", "pending", "running":
			jobs = append(jobs, *s.jobs[id])
		}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) withJob(w http.ResponseWriter, r *http.Request, fn func(job *letta.Job)) {
	jobID := mux.Vars(r)["job_id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		notFound(w, "job", jobID)
		return
	}
	fn(job)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	s.withJob(w, r, func(job *letta.Job) { writeJSON(w, http.StatusOK, job) })
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	s.withJob(w, r, func(job *letta.Job) {
		job.Status = "cancelled"
		job.CompletedAt = timestamp()
		writeJSON(w, http.StatusOK, job)
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
