package routers

import (
	"context"
	"fmt"
	"letta-mcp-server/internal/letta"
)

// JobMonitorName is the MCP tool served by JobRouter
const JobMonitorName = "letta_job_monitor"

// JobOperation enumerates the operations of letta_job_monitor
type JobOperation string

const (
	JobList       JobOperation = "list"
	JobGet        JobOperation = "get"
	JobCancel     JobOperation = "cancel"
	JobListActive JobOperation = "list_active"
)

// AllJobOperations lists every JobOperation in catalogue order
var AllJobOperations = []JobOperation{JobList, JobGet, JobCancel, JobListActive}

// JobRequest is the union of every letta_job_monitor argument
type JobRequest struct {
	Operation JobOperation `json:"operation,omitempty" mapstructure:"operation"`
	JobID     string       `json:"job_id,omitempty" mapstructure:"job_id"`
	Limit     int          `json:"limit,omitempty" mapstructure:"limit"`
	Offset    int          `json:"offset,omitempty" mapstructure:"offset"`

	RequestHeartbeat bool `json:"request_heartbeat,omitempty" mapstructure:"request_heartbeat"`
}

// JobResponse is the letta_job_monitor envelope
type JobResponse struct {
	Envelope
	Count *int   `json:"count,omitempty"`
	JobID string `json:"job_id,omitempty"`
}

// JobRouter serves letta_job_monitor
type JobRouter struct {
	*dispatcher[JobOperation, JobRequest]
	client letta.Client
}

var _ Router = (*JobRouter)(nil)

// NewJobRouter builds the router; it fails if any operation lacks a handler
func NewJobRouter(client letta.Client, opts Options) (*JobRouter, error) {
	r := &JobRouter{client: client}
	routes := map[JobOperation]route[JobRequest]{
		JobList:       {handle: r.list},
		JobGet:        {requires: need("job_id"), handle: r.get},
		JobCancel:     {requires: need("job_id"), handle: r.cancel},
		JobListActive: {handle: r.listActive},
	}

	d, err := newDispatcher(JobMonitorName,
		"Background job monitoring: list, get, cancel and list_active.",
		AllJobOperations, routes, opts)
	if err != nil {
		return nil, err
	}
	r.dispatcher = d
	return r, nil
}

func (r *JobRouter) list(ctx context.Context, req *JobRequest) (response, error) {
	p, err := page(req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	jobs, err := r.client.Jobs().List(ctx, p)
	if err != nil {
		return nil, err
	}
	return &JobResponse{
		Envelope: ok(fmt.Sprintf("Found %d jobs", len(jobs)), nonNil(jobs)),
		Count:    countOf(len(jobs)),
	}, nil
}

func (r *JobRouter) get(ctx context.Context, req *JobRequest) (response, error) {
	jobID, err := letta.ParseID("job_id", req.JobID)
	if err != nil {
		return nil, err
	}
	job, err := r.client.Jobs().Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobResponse{Envelope: ok("Job retrieved successfully", job), JobID: job.ID}, nil
}

func (r *JobRouter) cancel(ctx context.Context, req *JobRequest) (response, error) {
	jobID, err := letta.ParseID("job_id", req.JobID)
	if err != nil {
		return nil, err
	}
	job, err := r.client.Jobs().Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobResponse{Envelope: ok("Job cancelled successfully", job), JobID: jobID.String()}, nil
}

func (r *JobRouter) listActive(ctx context.Context, _ *JobRequest) (response, error) {
	jobs, err := r.client.Jobs().ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return &JobResponse{
		Envelope: ok(fmt.Sprintf("Found %d active jobs", len(jobs)), nonNil(jobs)),
		Count:    countOf(len(jobs)),
	}, nil
}
