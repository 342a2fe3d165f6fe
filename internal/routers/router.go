// Package routers implements the seven consolidated Letta tools. Each router
// multiplexes a closed set of operations behind one MCP tool: it validates the
// flat argument map against a per-operation requirement table, calls the
// typed Letta client and renders a uniform JSON envelope.
package routers

import (
	"context"
	"encoding/json"
	"fmt"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/logging"
	"letta-mcp-server/internal/observability"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Router is one consolidated tool
type Router interface {
	Name() string
	Description() string
	Operations() []OperationInfo
	// Request returns a zero value of the tool's argument struct
	Request() interface{}
	Dispatch(ctx context.Context, args map[string]interface{}) (string, error)
}

// OperationInfo describes one operation for schema and docs generation
type OperationInfo struct {
	Name     string   `json:"name" yaml:"name"`
	Required []string `json:"required,omitempty" yaml:"required,omitempty"`
}

// Options carries the collaborators shared by every router
type Options struct {
	Logger  logging.Logger
	Tracer  trace.Tracer
	Metrics *observability.Metrics
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.NewNoOpLogger()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("routers")
	}
	return o
}

// Envelope is the response shared by every operation. Routers embed it and
// add their own convenience fields.
type Envelope struct {
	Success   bool        `json:"success"`
	Operation string      `json:"operation"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
}

func (e *Envelope) stamp(operation string) { e.Operation = operation }

// ok builds a successful envelope
func ok(message string, data interface{}) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

type response interface {
	stamp(operation string)
}

// requirement is satisfied when any one of its fields is present. A keyed
// requirement only needs the key to be sent, so blank values count.
type requirement struct {
	fields []string
	keyed  bool
}

func (r requirement) String() string { return strings.Join(r.fields, " or ") }

func (r requirement) satisfiedBy(args map[string]interface{}) bool {
	for _, field := range r.fields {
		v, found := args[field]
		if r.keyed && found && v != nil {
			return true
		}
		if present(v) {
			return true
		}
	}
	return false
}

type requirements []requirement

// need lists fields that are each required
func need(fields ...string) requirements {
	reqs := make(requirements, 0, len(fields))
	for _, f := range fields {
		reqs = append(reqs, requirement{fields: []string{f}})
	}
	return reqs
}

// orAny adds a requirement that at least one of fields is present
func (r requirements) orAny(fields ...string) requirements {
	return append(r, requirement{fields: fields})
}

// orAnyKey adds a requirement that at least one of fields is sent, even
// blank, so partial updates can clear a value
func (r requirements) orAnyKey(fields ...string) requirements {
	return append(r, requirement{fields: fields, keyed: true})
}

func (r requirements) names() []string {
	if len(r) == 0 {
		return nil
	}
	out := make([]string, len(r))
	for i, req := range r {
		out[i] = req.String()
	}
	return out
}

// check returns MissingField for the first unsatisfied requirement
func (r requirements) check(args map[string]interface{}, operation string) error {
	for _, req := range r {
		if !req.satisfiedBy(args) {
			return mcperrors.NewMissingFieldError(req.String(), operation)
		}
	}
	return nil
}

// present treats nil, blank strings and empty collections as absent
func present(v interface{}) bool {
	if v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

type route[R any] struct {
	requires requirements
	handle   func(ctx context.Context, req *R) (response, error)
}

// dispatcher is the operation switch shared by all routers. The route table
// is fixed at construction and must cover the enumerated operations exactly.
type dispatcher[O ~string, R any] struct {
	tool        string
	description string
	operations  []O
	routes      map[O]route[R]
	logger      logging.Logger
	tracer      trace.Tracer
	metrics     *observability.Metrics
}

func newDispatcher[O ~string, R any](tool, description string, all []O, routes map[O]route[R], opts Options) (*dispatcher[O, R], error) {
	if err := checkExhaustive(tool, all, routes); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &dispatcher[O, R]{
		tool:        tool,
		description: description,
		operations:  all,
		routes:      routes,
		logger:      opts.Logger.WithComponent(tool),
		tracer:      opts.Tracer,
		metrics:     opts.Metrics,
	}, nil
}

// checkExhaustive fails when an enumerated operation has no handler or a
// handler is registered for a value outside the enumeration
func checkExhaustive[O ~string, R any](tool string, all []O, routes map[O]route[R]) error {
	seen := make(map[O]bool, len(all))
	var missing, unknown []string
	for _, op := range all {
		if seen[op] {
			return fmt.Errorf("%s: operation %q enumerated twice", tool, op)
		}
		seen[op] = true
		if r, found := routes[op]; !found || r.handle == nil {
			missing = append(missing, string(op))
		}
	}
	for op := range routes {
		if !seen[op] {
			unknown = append(unknown, string(op))
		}
	}
	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	return fmt.Errorf("%s: handler table does not match operations (missing handlers: %v, unknown operations: %v)",
		tool, missing, unknown)
}

func (d *dispatcher[O, R]) Name() string        { return d.tool }
func (d *dispatcher[O, R]) Description() string { return d.description }

func (d *dispatcher[O, R]) Operations() []OperationInfo {
	infos := make([]OperationInfo, len(d.operations))
	for i, op := range d.operations {
		infos[i] = OperationInfo{Name: string(op), Required: d.routes[op].requires.names()}
	}
	return infos
}

func (d *dispatcher[O, R]) Request() interface{} { return new(R) }

func (d *dispatcher[O, R]) validOperations() string {
	names := make([]string, len(d.operations))
	for i, op := range d.operations {
		names[i] = string(op)
	}
	return strings.Join(names, ", ")
}

// resolve reads the discriminator from the raw arguments
func (d *dispatcher[O, R]) resolve(args map[string]interface{}) (O, error) {
	raw, found := args["operation"]
	if !found || raw == nil {
		return "", mcperrors.NewMissingFieldError("operation", d.tool)
	}
	name, isString := raw.(string)
	if !isString {
		return "", mcperrors.NewInvalidPayloadError("operation", "must be a string", raw)
	}
	op := O(strings.TrimSpace(name))
	if op == "" {
		return "", mcperrors.NewMissingFieldError("operation", d.tool)
	}
	if _, known := d.routes[op]; !known {
		return "", mcperrors.NewInvalidPayloadError("operation",
			fmt.Sprintf("unsupported operation %q for %s. Valid operations: %s", name, d.tool, d.validOperations()), name)
	}
	return op, nil
}

// Dispatch runs one operation and returns its envelope as indented JSON
func (d *dispatcher[O, R]) Dispatch(ctx context.Context, args map[string]interface{}) (string, error) {
	start := time.Now()

	op, err := d.resolve(args)
	if err != nil {
		d.metrics.RecordToolCall(d.tool, "", string(mcperrors.CodeOf(err)), time.Since(start))
		return "", err
	}

	ctx, span := d.tracer.Start(ctx, d.tool+"."+string(op), trace.WithAttributes(
		attribute.String("mcp.tool", d.tool),
		attribute.String("mcp.operation", string(op)),
	))
	out, err := d.run(ctx, op, args)
	observability.EndSpan(span, err)

	status := "ok"
	if err != nil {
		status = string(mcperrors.CodeOf(err))
		d.logger.WarnContext(ctx, "Operation failed", "operation", string(op), "code", status, "error", err.Error())
	}
	d.metrics.RecordToolCall(d.tool, string(op), status, time.Since(start))
	return out, err
}

func (d *dispatcher[O, R]) run(ctx context.Context, op O, args map[string]interface{}) (string, error) {
	d.logger.InfoContext(ctx, "Executing operation", "operation", string(op))

	r := d.routes[op]
	var req R
	if err := decode(args, &req); err != nil {
		return "", withOperation(err, string(op))
	}
	if err := r.requires.check(args, string(op)); err != nil {
		return "", err
	}

	resp, err := r.handle(ctx, &req)
	if err != nil {
		return "", withOperation(err, string(op))
	}
	resp.stamp(string(op))

	body, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", mcperrors.NewBackendError(string(op)+": failed to serialize response", err, nil)
	}
	return string(body), nil
}

// decode maps the raw tool arguments onto a request struct. Unknown keys are
// ignored; a value of the wrong shape is InvalidPayload.
func decode(args map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return mcperrors.NewInvalidPayloadError("arguments", err.Error(), nil)
	}
	return nil
}

func withOperation(err error, operation string) error {
	if stdErr, isStd := mcperrors.AsStandard(err); isStd {
		return stdErr.WithOperation(operation)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
