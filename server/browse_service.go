package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cheezgi/piccolo/vm"
)

// Procedure paths served by the browse service.
const (
	BrowseServiceName     = "piccolo.v1.BrowseService"
	ListModulesProcedure  = "/" + BrowseServiceName + "/ListModules"
	ListBindingsProcedure = "/" + BrowseServiceName + "/ListBindings"
	HeapStatsProcedure    = "/" + BrowseServiceName + "/HeapStats"
	browseServicePrefix   = "/" + BrowseServiceName + "/"
)

// BrowseService lists the VM's modules, their bindings and heap state.
type BrowseService struct {
	worker  *VMWorker
	handles *HandleStore
}

// NewBrowseService creates a BrowseService.
func NewBrowseService(worker *VMWorker, handles *HandleStore) *BrowseService {
	return &BrowseService{worker: worker, handles: handles}
}

// Handler returns the service's path prefix and its http.Handler.
func (s *BrowseService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(ListModulesProcedure, connect.NewUnaryHandler(ListModulesProcedure, s.ListModules, opts...))
	mux.Handle(ListBindingsProcedure, connect.NewUnaryHandler(ListBindingsProcedure, s.ListBindings, opts...))
	mux.Handle(HeapStatsProcedure, connect.NewUnaryHandler(HeapStatsProcedure, s.HeapStats, opts...))
	return browseServicePrefix, mux
}

// ListModules returns every module with its binding count.
func (s *BrowseService) ListModules(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		reg := v.Registry()
		var modules []interface{}
		for _, name := range reg.Modules() {
			ns, _ := reg.Module(name)
			modules = append(modules, map[string]interface{}{
				"name":     name,
				"bindings": ns.Len(),
			})
		}
		return map[string]interface{}{
			"modules": modules,
			"globals": reg.Globals().Len(),
		}
	})
	return respond(result, err)
}

// ListBindings returns the bindings of {module}, or the globals when module
// is empty. {prefix?} filters by name.
func (s *BrowseService) ListBindings(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	module := fields["module"].GetStringValue()
	prefix := fields["prefix"].GetStringValue()

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		ns := v.Registry().Globals()
		if module != "" {
			var ok bool
			if ns, ok = v.Registry().Module(module); !ok {
				return connect.NewError(connect.CodeNotFound, fmt.Errorf("module %q not found", module))
			}
		}
		var bindings []interface{}
		for _, name := range ns.Names() {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			val, _ := ns.Lookup(name)
			bindings = append(bindings, map[string]interface{}{
				"name":   name,
				"kind":   val.TypeName(),
				"result": val.Repr(),
			})
		}
		return map[string]interface{}{
			"module":   ns.Name(),
			"bindings": bindings,
		}
	})
	return respond(result, err)
}

// HeapStats reports the last collection, or runs one first when {collect}
// is true.
func (s *BrowseService) HeapStats(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	collect := req.Msg.GetFields()["collect"].GetBoolValue()

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		stats := v.Stats()
		if collect {
			stats = v.Collect()
		}
		return map[string]interface{}{
			"vm":             v.ID().String(),
			"cycle":          stats.Cycle,
			"objectsBefore":  stats.ObjectsBefore,
			"objectsAfter":   stats.ObjectsAfter,
			"bytesAfter":     stats.BytesAfter,
			"freed":          stats.Freed,
			"finalizersRun":  stats.FinalizersRun,
			"threshold":      stats.Threshold,
			"durationMicros": stats.Duration.Microseconds(),
			"vmHandles":      v.HandleCount(),
			"serverHandles":  s.handles.Len(),
		}
	})
	return respond(result, err)
}
