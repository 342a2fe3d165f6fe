// Package lettatest provides an in-memory Letta REST server for tests. It
// implements the subset of the /v1 API the letta client speaks and counts
// every request it receives.
package lettatest

import (
	"encoding/json"
	"letta-mcp-server/internal/config"
	"letta-mcp-server/internal/letta"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// DefaultMaxOpenFiles is how many files an agent may keep open before the
// least recently opened one is evicted
const DefaultMaxOpenFiles = 5

// Server is a fake Letta backend
type Server struct {
	*httptest.Server

	// Password, when set, must be presented as a bearer token
	Password string

	requests atomic.Int64

	mu           sync.Mutex
	failStatus   int
	failCount    int
	maxOpenFiles int

	agents       map[string]*letta.Agent
	agentOrder   []string
	blocks       map[string]*letta.Block
	blockOrder   []string
	agentBlocks  map[string][]string
	passages     map[string][]letta.Passage
	tools        map[string]*letta.Tool
	toolOrder    []string
	agentTools   map[string][]string
	mcpServers   map[string]letta.MCPServerConfig
	mcpTools     map[string][]letta.MCPTool
	sources      map[string]*letta.Source
	sourceOrder  []string
	sourceFiles  map[string][]letta.FileMetadata
	agentSources map[string][]string
	agentFolders map[string][]string
	openFiles    map[string][]string
	messages     map[string][]letta.Message
	jobs         map[string]*letta.Job
	jobOrder     []string
}

// NewServer starts a fake backend that is closed when the test ends
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		maxOpenFiles: DefaultMaxOpenFiles,
		agents:       make(map[string]*letta.Agent),
		blocks:       make(map[string]*letta.Block),
		agentBlocks:  make(map[string][]string),
		passages:     make(map[string][]letta.Passage),
		tools:        make(map[string]*letta.Tool),
		agentTools:   make(map[string][]string),
		mcpServers:   make(map[string]letta.MCPServerConfig),
		mcpTools:     make(map[string][]letta.MCPTool),
		sources:      make(map[string]*letta.Source),
		sourceFiles:  make(map[string][]letta.FileMetadata),
		agentSources: make(map[string][]string),
		agentFolders: make(map[string][]string),
		openFiles:    make(map[string][]string),
		messages:     make(map[string][]letta.Message),
		jobs:         make(map[string]*letta.Job),
	}

	router := mux.NewRouter()
	s.routes(router)
	s.Server = httptest.NewServer(s.middleware(router))
	t.Cleanup(s.Close)
	return s
}

// Config returns a client configuration pointing at the fake with retries
// and the circuit breaker disabled so failures surface on the first call
func (s *Server) Config() config.LettaConfig {
	cfg := config.DefaultConfig().Letta
	cfg.BaseURL = s.URL
	cfg.Password = s.Password
	cfg.RetryAttempts = 1
	cfg.CircuitBreaker = false
	return cfg
}

// Client builds a letta.HTTPClient bound to the fake
func (s *Server) Client(t testing.TB) *letta.HTTPClient {
	t.Helper()
	client, err := letta.NewHTTPClient(s.Config(), nil)
	if err != nil {
		t.Fatalf("failed to build letta client: %v", err)
	}
	return client
}

// Requests returns how many HTTP requests the fake has served
func (s *Server) Requests() int64 { return s.requests.Load() }

// FailNext makes the next n requests answer with status
func (s *Server) FailNext(status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus, s.failCount = status, n
}

// SetMaxOpenFiles changes the per-agent open file budget
func (s *Server) SetMaxOpenFiles(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxOpenFiles = n
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)

		if s.Password != "" && r.Header.Get("Authorization") != "Bearer "+s.Password {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		s.mu.Lock()
		if s.failCount > 0 {
			s.failCount--
			status := s.failStatus
			s.mu.Unlock()
			writeError(w, status, "injected failure")
			return
		}
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// Seeding helpers. They bypass HTTP so they do not count as requests.

// AddAgent stores an agent directly
func (s *Server) AddAgent(name string, tags ...string) letta.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.createAgent(letta.CreateAgentRequest{Name: name, Tags: tags})
}

// AddBlock stores a standalone block
func (s *Server) AddBlock(label, value string) letta.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.createBlock(letta.CreateBlockRequest{Label: label, Value: value})
}

// AddTool stores a tool
func (s *Server) AddTool(name string) letta.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.storeTool(letta.Tool{Name: name, SourceType: "python",
		SourceCode: "def " + name + "():\n    return None\n"})
}

// AddSource stores a source, which also serves as a folder
func (s *Server) AddSource(name string) letta.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.createSource(letta.CreateSourceRequest{Name: name})
}

// AddFile stores a file inside a source/folder
func (s *Server) AddFile(sourceID, fileName, content string) letta.FileMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFile(sourceID, fileName, []byte(content))
}

// AttachFolder attaches a folder to an agent without going through HTTP
func (s *Server) AttachFolder(agentID, folderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentFolders[agentID] = appendUnique(s.agentFolders[agentID], folderID)
}

// AddJob stores a job with the given status
func (s *Server) AddJob(status string) letta.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.createJob("job", status, nil)
}

// AddMCPServer registers an external tool server with its tool list
func (s *Server) AddMCPServer(name string, cfg letta.MCPServerConfig, tools ...letta.MCPTool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := letta.MCPServerConfig{"server_name": name}
	for k, v := range cfg {
		stored[k] = v
	}
	s.mcpServers[name] = stored
	s.mcpTools[name] = tools
}

// Agent returns a snapshot of an agent as the API would render it
func (s *Server) Agent(id string) (letta.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return letta.Agent{}, false
	}
	return s.agentView(id), true
}

// OpenFiles returns the ids of the files an agent has open, oldest first
func (s *Server) OpenFiles(agentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.openFiles[agentID]...)
}

// state helpers, called with mu held

func (s *Server) createAgent(req letta.CreateAgentRequest) *letta.Agent {
	now := timestamp()
	agent := &letta.Agent{
		ID:              letta.NewID("agent").String(),
		Name:            req.Name,
		Description:     req.Description,
		System:          req.System,
		AgentType:       "memgpt_agent",
		Tags:            req.Tags,
		LLMConfig:       req.LLMConfig,
		EmbeddingConfig: req.EmbeddingConfig,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.agents[agent.ID] = agent
	s.agentOrder = append(s.agentOrder, agent.ID)
	for _, toolID := range req.ToolIDs {
		if _, ok := s.tools[toolID]; ok {
			s.agentTools[agent.ID] = appendUnique(s.agentTools[agent.ID], toolID)
		}
	}
	return agent
}

func (s *Server) deleteAgent(id string) {
	delete(s.agents, id)
	s.agentOrder = without(s.agentOrder, id)
	delete(s.agentBlocks, id)
	delete(s.agentTools, id)
	delete(s.agentSources, id)
	delete(s.agentFolders, id)
	delete(s.openFiles, id)
	delete(s.passages, id)
	delete(s.messages, id)
}

// agentView renders an agent with its attached tools, sources and memory
func (s *Server) agentView(id string) letta.Agent {
	agent := *s.agents[id]
	agent.Tools = nil
	for _, toolID := range s.agentTools[id] {
		if tool, ok := s.tools[toolID]; ok {
			agent.Tools = append(agent.Tools, *tool)
		}
	}
	agent.Sources = nil
	for _, sourceID := range append(append([]string(nil), s.agentSources[id]...), s.agentFolders[id]...) {
		if source, ok := s.sources[sourceID]; ok {
			agent.Sources = append(agent.Sources, *source)
		}
	}
	agent.Memory = &letta.Memory{Blocks: s.coreBlocks(id)}
	return agent
}

func (s *Server) coreBlocks(agentID string) []letta.Block {
	blocks := []letta.Block{}
	for _, blockID := range s.agentBlocks[agentID] {
		if block, ok := s.blocks[blockID]; ok {
			blocks = append(blocks, *block)
		}
	}
	return blocks
}

func (s *Server) createBlock(req letta.CreateBlockRequest) *letta.Block {
	limit := req.Limit
	if limit == 0 {
		limit = 5000
	}
	block := &letta.Block{
		ID:          letta.NewID("block").String(),
		Label:       req.Label,
		Value:       req.Value,
		Description: req.Description,
		Limit:       limit,
		IsTemplate:  req.IsTemplate,
		Metadata:    req.Metadata,
	}
	s.blocks[block.ID] = block
	s.blockOrder = append(s.blockOrder, block.ID)
	return block
}

func (s *Server) storeTool(tool letta.Tool) *letta.Tool {
	if tool.ID == "" {
		tool.ID = letta.NewID("tool").String()
	}
	if tool.ToolType == "" {
		tool.ToolType = "custom"
	}
	stored := tool
	if _, exists := s.tools[stored.ID]; !exists {
		s.toolOrder = append(s.toolOrder, stored.ID)
	}
	s.tools[stored.ID] = &stored
	return &stored
}

func (s *Server) toolByName(name string) *letta.Tool {
	for _, id := range s.toolOrder {
		if s.tools[id].Name == name {
			return s.tools[id]
		}
	}
	return nil
}

func (s *Server) createSource(req letta.CreateSourceRequest) *letta.Source {
	source := &letta.Source{
		ID:              letta.NewID("source").String(),
		Name:            req.Name,
		Description:     req.Description,
		EmbeddingConfig: req.EmbeddingConfig,
		CreatedAt:       timestamp(),
	}
	s.sources[source.ID] = source
	s.sourceOrder = append(s.sourceOrder, source.ID)
	return source
}

func (s *Server) addFile(sourceID, fileName string, data []byte) letta.FileMetadata {
	file := letta.FileMetadata{
		ID:               letta.NewID("file").String(),
		FileName:         fileName,
		SourceID:         sourceID,
		FileType:         fileType(fileName),
		FileSize:         int64(len(data)),
		ProcessingStatus: "completed",
		Content:          string(data),
		CreatedAt:        timestamp(),
	}
	s.sourceFiles[sourceID] = append(s.sourceFiles[sourceID], file)
	return file
}

func (s *Server) findFile(fileID string) (letta.FileMetadata, bool) {
	for _, files := range s.sourceFiles {
		for _, f := range files {
			if f.ID == fileID {
				return f, true
			}
		}
	}
	return letta.FileMetadata{}, false
}

func (s *Server) createJob(prefix, status string, metadata map[string]interface{}) *letta.Job {
	job := &letta.Job{
		ID:        letta.NewID(prefix).String(),
		Status:    status,
		JobType:   "job",
		Metadata:  metadata,
		CreatedAt: timestamp(),
	}
	if status == "completed" {
		job.CompletedAt = job.CreatedAt
	}
	s.jobs[job.ID] = job
	s.jobOrder = append(s.jobOrder, job.ID)
	return job
}

// HTTP helpers

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func notFound(w http.ResponseWriter, kind, id string) {
	writeError(w, http.StatusNotFound, kind+" "+id+" not found")
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// mergePatch applies a partial JSON object onto dst
func mergePatch(dst interface{}, patch map[string]interface{}) error {
	current, err := json.Marshal(dst)
	if err != nil {
		return err
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(current, &merged); err != nil {
		return err
	}
	for k, v := range patch {
		merged[k] = v
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, dst)
}

func page[T any](items []T, r *http.Request) []T {
	q := r.URL.Query()
	offset := atoiOr(q.Get("offset"), 0)
	limit := atoiOr(q.Get("limit"), len(items))
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func atoiOr(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}

func without(list []string, id string) []string {
	out := list[:0:0]
	for _, existing := range list {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func contains(list []string, id string) bool {
	for _, existing := range list {
		if existing == id {
			return true
		}
	}
	return false
}

func hasAllTags(have, want []string) bool {
	for _, tag := range want {
		if !contains(have, tag) {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fileType(name string) string {
	switch {
	case strings.HasSuffix(name, ".md"):
		return "text/markdown"
	case strings.HasSuffix(name, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	default:
		return "text/plain"
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
