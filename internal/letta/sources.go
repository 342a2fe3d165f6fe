package letta

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

type sourcesAPI struct{ c *HTTPClient }

func (s *sourcesAPI) List(ctx context.Context, params ListParams) ([]Source, error) {
	var sources []Source
	err := s.c.do(ctx, request{method: http.MethodGet, path: "/sources/", query: pageQuery(params.Limit, params.Offset)}, &sources)
	return sources, err
}

func (s *sourcesAPI) Count(ctx context.Context) (int, error) {
	var n int
	err := s.c.do(ctx, request{method: http.MethodGet, path: "/sources/count"}, &n)
	return n, err
}

func (s *sourcesAPI) Get(ctx context.Context, sourceID ID) (*Source, error) {
	return s.one(ctx, sourceRequest(http.MethodGet, sourceID, ""))
}

func (s *sourcesAPI) Create(ctx context.Context, req CreateSourceRequest) (*Source, error) {
	return s.one(ctx, request{method: http.MethodPost, path: "/sources/", body: req})
}

func (s *sourcesAPI) Update(ctx context.Context, sourceID ID, update UpdateSourceRequest) (*Source, error) {
	req := sourceRequest(http.MethodPatch, sourceID, "")
	req.body = update
	return s.one(ctx, req)
}

func (s *sourcesAPI) Delete(ctx context.Context, sourceID ID) error {
	return s.c.do(ctx, sourceRequest(http.MethodDelete, sourceID, ""), nil)
}

func (s *sourcesAPI) Upload(ctx context.Context, sourceID ID, file Upload) (*Job, error) {
	body, contentType, err := multipartFile("file", file.FileName, file.ContentType, file.Data)
	if err != nil {
		return nil, err
	}
	req := sourceRequest(http.MethodPost, sourceID, "/upload")
	req.rawBody, req.contentType = body, contentType

	var job Job
	if err := s.c.do(ctx, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *sourcesAPI) ListFiles(ctx context.Context, sourceID ID, params ListFilesParams) ([]FileMetadata, error) {
	req := sourceRequest(http.MethodGet, sourceID, "/files")
	req.query = filesQuery(params)
	var files []FileMetadata
	err := s.c.do(ctx, req, &files)
	return files, err
}

func (s *sourcesAPI) DeleteFile(ctx context.Context, sourceID, fileID ID) error {
	req := sourceRequest(http.MethodDelete, sourceID, "/"+escape(fileID.String()))
	req.resource, req.id = "file", fileID.String()
	return s.c.do(ctx, req, nil)
}

func (s *sourcesAPI) ListAgents(ctx context.Context, sourceID ID) ([]string, error) {
	var ids []string
	err := s.c.do(ctx, sourceRequest(http.MethodGet, sourceID, "/agents"), &ids)
	return ids, err
}

func (s *sourcesAPI) one(ctx context.Context, req request) (*Source, error) {
	var source Source
	if err := s.c.do(ctx, req, &source); err != nil {
		return nil, err
	}
	return &source, nil
}

func sourceRequest(method string, sourceID ID, suffix string) request {
	return request{
		method:   method,
		path:     "/sources/" + escape(sourceID.String()) + suffix,
		resource: "source",
		id:       sourceID.String(),
	}
}

func filesQuery(params ListFilesParams) url.Values {
	q := pageQuery(params.Limit, params.Offset)
	if params.IncludeContent {
		q.Set("include_content", strconv.FormatBool(true))
	}
	return q
}

type foldersAPI struct{ c *HTTPClient }

func (f *foldersAPI) List(ctx context.Context, params ListParams) ([]Folder, error) {
	var folders []Folder
	err := f.c.do(ctx, request{method: http.MethodGet, path: "/folders/", query: pageQuery(params.Limit, params.Offset)}, &folders)
	return folders, err
}

func (f *foldersAPI) ListFiles(ctx context.Context, folderID ID, params ListFilesParams) ([]FileMetadata, error) {
	req := folderRequest(http.MethodGet, folderID, "/files")
	req.query = filesQuery(params)
	var files []FileMetadata
	err := f.c.do(ctx, req, &files)
	return files, err
}

func (f *foldersAPI) ListAgents(ctx context.Context, folderID ID) ([]string, error) {
	var ids []string
	err := f.c.do(ctx, folderRequest(http.MethodGet, folderID, "/agents"), &ids)
	return ids, err
}

func (f *foldersAPI) Attach(ctx context.Context, agentID, folderID ID) (*Agent, error) {
	return f.c.agents.patchAgent(ctx, agentID, "/folders/attach/"+escape(folderID.String()))
}

func (f *foldersAPI) Detach(ctx context.Context, agentID, folderID ID) (*Agent, error) {
	return f.c.agents.patchAgent(ctx, agentID, "/folders/detach/"+escape(folderID.String()))
}

func folderRequest(method string, folderID ID, suffix string) request {
	return request{
		method:   method,
		path:     "/folders/" + escape(folderID.String()) + suffix,
		resource: "folder",
		id:       folderID.String(),
	}
}

type filesAPI struct{ c *HTTPClient }

func (f *filesAPI) List(ctx context.Context, agentID ID) ([]AgentFile, error) {
	var files []AgentFile
	err := f.c.do(ctx, agentRequest(http.MethodGet, agentID, "/files"), &files)
	return files, err
}

func (f *filesAPI) Open(ctx context.Context, agentID, fileID ID) ([]string, error) {
	var evicted []string
	err := f.c.do(ctx, fileRequest(agentID, fileID, "/open"), &evicted)
	return evicted, err
}

func (f *filesAPI) Close(ctx context.Context, agentID, fileID ID) error {
	return f.c.do(ctx, fileRequest(agentID, fileID, "/close"), nil)
}

func (f *filesAPI) CloseAll(ctx context.Context, agentID ID) ([]string, error) {
	var closed []string
	err := f.c.do(ctx, agentRequest(http.MethodPatch, agentID, "/files/close-all"), &closed)
	return closed, err
}

func fileRequest(agentID, fileID ID, action string) request {
	req := agentRequest(http.MethodPatch, agentID, "/files/"+escape(fileID.String())+action)
	req.resource, req.id = "file", fileID.String()
	return req
}
