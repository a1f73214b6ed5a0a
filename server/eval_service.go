package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cheezgi/piccolo/vm"
)

// Procedure paths served by the eval service. Requests and responses are
// google.protobuf.Struct messages.
const (
	EvalServiceName     = "piccolo.v1.EvalService"
	EvaluateProcedure   = "/" + EvalServiceName + "/Evaluate"
	CallProcedure       = "/" + EvalServiceName + "/Call"
	ReleaseProcedure    = "/" + EvalServiceName + "/Release"
	GlobalProcedure     = "/" + EvalServiceName + "/Global"
	evalServicePrefix   = "/" + EvalServiceName + "/"
	defaultRequestName  = "<remote>"
	handleArgumentField = "handle"
)

// EvalService runs scripts and calls on a worker-owned VM.
type EvalService struct {
	worker  *VMWorker
	handles *HandleStore
}

// NewEvalService creates an EvalService.
func NewEvalService(worker *VMWorker, handles *HandleStore) *EvalService {
	return &EvalService{worker: worker, handles: handles}
}

// Handler returns the service's path prefix and an http.Handler serving all
// of its procedures.
func (s *EvalService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(EvaluateProcedure, connect.NewUnaryHandler(EvaluateProcedure, s.Evaluate, opts...))
	mux.Handle(CallProcedure, connect.NewUnaryHandler(CallProcedure, s.Call, opts...))
	mux.Handle(ReleaseProcedure, connect.NewUnaryHandler(ReleaseProcedure, s.Release, opts...))
	mux.Handle(GlobalProcedure, connect.NewUnaryHandler(GlobalProcedure, s.Global, opts...))
	return evalServicePrefix, mux
}

// Evaluate runs {source, name?, session?} and answers with a result payload.
// Script errors are reported in the payload, not as RPC errors.
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	source := fields["source"].GetStringValue()
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	name := fields["name"].GetStringValue()
	if name == "" {
		name = defaultRequestName
	}
	session := fields["session"].GetStringValue()

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		val, err := v.RunSource(name, source)
		if err != nil {
			return errorPayload(err)
		}
		return s.resultPayload(v, val, session)
	})
	return respond(result, err)
}

// Call invokes the callable behind {handle} with {args?, session?}.
// Arguments are JSON scalars or {"handle": id} references.
func (s *EvalService) Call(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	id := fields[handleArgumentField].GetStringValue()
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("handle is required"))
	}
	args := fields["args"].GetListValue().GetValues()
	session := fields["session"].GetStringValue()

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		callee, ok := s.handles.Lookup(id)
		if !ok {
			return connect.NewError(connect.CodeNotFound, fmt.Errorf("handle %q not found", id))
		}

		vals, release, cerr := s.convertArgs(v, args)
		defer release()
		if cerr != nil {
			return cerr
		}
		val, err := v.Call(callee, vals...)
		if err != nil {
			return errorPayload(err)
		}
		return s.resultPayload(v, val, session)
	})
	return respond(result, err)
}

// Release drops {handle} or every handle of {session}.
func (s *EvalService) Release(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	id := fields[handleArgumentField].GetStringValue()
	session := fields["session"].GetStringValue()

	var released int
	switch {
	case id != "":
		if s.handles.Release(id) {
			released = 1
		}
	case session != "":
		released = s.handles.ReleaseSession(session)
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("handle or session is required"))
	}

	out, err := structpb.NewStruct(map[string]interface{}{"released": released})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// Global reads the global {name} and returns it like Evaluate does.
func (s *EvalService) Global(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	name := fields["name"].GetStringValue()
	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("name is required"))
	}
	session := fields["session"].GetStringValue()

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		val, ok := v.Global(name)
		if !ok {
			return connect.NewError(connect.CodeNotFound, fmt.Errorf("undefined global %q", name))
		}
		return s.resultPayload(v, val, session)
	})
	return respond(result, err)
}

// respond turns a worker result into a Connect response. Worker failures
// are internal errors; handlers signal RPC errors by returning *connect.Error.
func respond(result interface{}, err error) (*connect.Response[structpb.Struct], error) {
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	switch r := result.(type) {
	case *connect.Error:
		return nil, r
	case map[string]interface{}:
		out, err := structpb.NewStruct(r)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		return connect.NewResponse(out), nil
	}
	return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("unexpected worker result %T", result))
}

// resultPayload pins val and describes it. Must run on the worker.
func (s *EvalService) resultPayload(v *vm.VM, val vm.Value, session string) map[string]interface{} {
	payload := map[string]interface{}{
		"success": true,
		"result":  val.Repr(),
		"kind":    val.TypeName(),
	}
	if native, err := vm.FromValue(val); err == nil {
		if pv, err := structpb.NewValue(native); err == nil {
			payload["value"] = pv.AsInterface()
		}
	}
	if val.IsHeap() {
		payload[handleArgumentField] = s.handles.Create(v, val, session)
	}
	return payload
}

func errorPayload(err error) map[string]interface{} {
	payload := map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	}
	var vmErr *vm.Error
	if errors.As(err, &vmErr) {
		payload["errorKind"] = vmErr.Kind.String()
		if len(vmErr.Trace) > 0 {
			trace := make([]interface{}, len(vmErr.Trace))
			for i, entry := range vmErr.Trace {
				trace[i] = entry.String()
			}
			payload["trace"] = trace
		}
	}
	log.Debugf("script error: %s", err.Error())
	return payload
}

// convertArgs converts request arguments. Heap arguments stay pinned until
// release is called. Must run on the worker.
func (s *EvalService) convertArgs(v *vm.VM, args []*structpb.Value) ([]vm.Value, func(), *connect.Error) {
	var pins []*vm.Handle
	release := func() {
		for _, p := range pins {
			p.Release()
		}
	}
	vals := make([]vm.Value, 0, len(args))
	for i, arg := range args {
		val, err := s.fromProto(v, arg)
		if err != nil {
			return nil, release, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("argument %d: %w", i, err))
		}
		if val.IsHeap() {
			pins = append(pins, v.NewHandle(val))
		}
		vals = append(vals, val)
	}
	return vals, release, nil
}

// fromProto converts a request argument. Must run on the worker; strings
// are allocated unrooted, so callers pin them before the next allocation.
func (s *EvalService) fromProto(v *vm.VM, arg *structpb.Value) (vm.Value, error) {
	switch kind := arg.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return vm.Nil, nil
	case *structpb.Value_BoolValue:
		return vm.Bool(kind.BoolValue), nil
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return vm.Int(int64(n)), nil
		}
		return vm.Float(n), nil
	case *structpb.Value_StringValue:
		return v.NewString(kind.StringValue), nil
	case *structpb.Value_StructValue:
		id := kind.StructValue.GetFields()[handleArgumentField].GetStringValue()
		if id == "" {
			return vm.Nil, fmt.Errorf("objects must be handle references")
		}
		val, ok := s.handles.Lookup(id)
		if !ok {
			return vm.Nil, fmt.Errorf("handle %q not found", id)
		}
		return val, nil
	}
	return vm.Nil, fmt.Errorf("unsupported argument type %T", arg.GetKind())
}
