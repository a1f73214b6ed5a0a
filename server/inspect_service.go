package server

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cheezgi/piccolo/vm"
)

// Procedure paths served by the inspect service.
const (
	InspectServiceName    = "piccolo.v1.InspectService"
	InspectProcedure      = "/" + InspectServiceName + "/Inspect"
	InspectFieldProcedure = "/" + InspectServiceName + "/InspectField"
	InvokeProcedure       = "/" + InspectServiceName + "/Invoke"
	inspectServicePrefix  = "/" + InspectServiceName + "/"
)

// InspectService looks inside values held by handles.
type InspectService struct {
	worker  *VMWorker
	handles *HandleStore
	eval    *EvalService
}

// NewInspectService creates an InspectService.
func NewInspectService(worker *VMWorker, handles *HandleStore) *InspectService {
	return &InspectService{
		worker:  worker,
		handles: handles,
		eval:    NewEvalService(worker, handles),
	}
}

// Handler returns the service's path prefix and its http.Handler.
func (s *InspectService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(InspectProcedure, connect.NewUnaryHandler(InspectProcedure, s.Inspect, opts...))
	mux.Handle(InspectFieldProcedure, connect.NewUnaryHandler(InspectFieldProcedure, s.InspectField, opts...))
	mux.Handle(InvokeProcedure, connect.NewUnaryHandler(InvokeProcedure, s.Invoke, opts...))
	return inspectServicePrefix, mux
}

// Inspect describes the value behind {handle}: its kind, rendering, fields
// of an instance and methods of an instance's class or of a class.
func (s *InspectService) Inspect(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id := req.Msg.GetFields()[handleArgumentField].GetStringValue()
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("handle is required"))
	}

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		val, ok := s.handles.Lookup(id)
		if !ok {
			return connect.NewError(connect.CodeNotFound, fmt.Errorf("handle %q not found", id))
		}
		return inspectValue(val, id)
	})
	return respond(result, err)
}

// InspectField returns the {field} of the instance behind {handle}, pinned
// under a new handle.
func (s *InspectService) InspectField(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	id := fields[handleArgumentField].GetStringValue()
	name := fields["field"].GetStringValue()
	if id == "" || name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("handle and field are required"))
	}
	session := fields["session"].GetStringValue()

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		val, ok := s.handles.Lookup(id)
		if !ok {
			return connect.NewError(connect.CodeNotFound, fmt.Errorf("handle %q not found", id))
		}
		inst := val.Instance()
		if inst == nil {
			return connect.NewError(connect.CodeFailedPrecondition,
				fmt.Errorf("%s value has no fields", val.TypeName()))
		}
		fieldVal, ok := inst.Field(name)
		if !ok {
			return connect.NewError(connect.CodeNotFound,
				fmt.Errorf("field %q not found on %s instance", name, inst.Class.Name))
		}
		return s.eval.resultPayload(v, fieldVal, session)
	})
	return respond(result, err)
}

// Invoke calls {method} on the instance behind {handle} with {args?}.
// Script errors are reported in the payload.
func (s *InspectService) Invoke(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	id := fields[handleArgumentField].GetStringValue()
	method := fields["method"].GetStringValue()
	if id == "" || method == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("handle and method are required"))
	}
	args := fields["args"].GetListValue().GetValues()
	session := fields["session"].GetStringValue()

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		recv, ok := s.handles.Lookup(id)
		if !ok {
			return connect.NewError(connect.CodeNotFound, fmt.Errorf("handle %q not found", id))
		}
		vals, release, cerr := s.eval.convertArgs(v, args)
		defer release()
		if cerr != nil {
			return cerr
		}
		val, err := v.Invoke(recv, method, vals...)
		if err != nil {
			return errorPayload(err)
		}
		return s.eval.resultPayload(v, val, session)
	})
	return respond(result, err)
}

// inspectValue builds the Inspect payload. Must run on the worker.
func inspectValue(val vm.Value, id string) map[string]interface{} {
	payload := map[string]interface{}{
		handleArgumentField: id,
		"kind":              val.TypeName(),
		"result":            val.Repr(),
	}

	var cls *vm.Class
	switch {
	case val.Instance() != nil:
		inst := val.Instance()
		cls = inst.Class
		fieldMap := make(map[string]interface{})
		for _, name := range inst.FieldNames() {
			f, _ := inst.Field(name)
			fieldMap[name] = f.Repr()
		}
		payload["fields"] = fieldMap
		payload["className"] = cls.Name
	case val.Class() != nil:
		cls = val.Class()
		payload["className"] = cls.Name
	case val.Closure() != nil:
		payload["arity"] = val.Closure().Arity()
	case val.Native() != nil:
		payload["arity"] = val.Native().Arity
	}
	if cls != nil {
		names := cls.MethodNames()
		methods := make([]interface{}, len(names))
		for i, name := range names {
			methods[i] = name
		}
		payload["methods"] = methods
	}
	return payload
}
