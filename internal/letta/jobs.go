package letta

import (
	"context"
	"net/http"
)

type jobsAPI struct{ c *HTTPClient }

func (j *jobsAPI) List(ctx context.Context, params ListParams) ([]Job, error) {
	var jobs []Job
	err := j.c.do(ctx, request{method: http.MethodGet, path: "/jobs/", query: pageQuery(params.Limit, params.Offset)}, &jobs)
	return jobs, err
}

func (j *jobsAPI) ListActive(ctx context.Context) ([]Job, error) {
	var jobs []Job
	err := j.c.do(ctx, request{method: http.MethodGet, path: "/jobs/active"}, &jobs)
	return jobs, err
}

func (j *jobsAPI) Get(ctx context.Context, jobID ID) (*Job, error) {
	return j.one(ctx, jobRequest(http.MethodGet, jobID, ""))
}

func (j *jobsAPI) Cancel(ctx context.Context, jobID ID) (*Job, error) {
	return j.one(ctx, jobRequest(http.MethodPatch, jobID, "/cancel"))
}

func (j *jobsAPI) one(ctx context.Context, req request) (*Job, error) {
	var job Job
	if err := j.c.do(ctx, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func jobRequest(method string, jobID ID, suffix string) request {
	return request{
		method:   method,
		path:     "/jobs/" + escape(jobID.String()) + suffix,
		resource: "job",
		id:       jobID.String(),
	}
}
