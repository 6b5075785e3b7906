package dispatch

import (
	"fmt"
	"reflect"
)

// contextType is used to validate that a candidate method's second
// parameter really is *Context.
var contextType = reflect.TypeOf((*Context)(nil))

// service mirrors the teacher's service/methodType split (see
// server/service.go in BX-D-mini-RPC): a receiver plus the set of its
// exported methods matching the handler signature, keyed by name.
type service struct {
	name    string
	rcvr    reflect.Value
	methods map[string]reflect.Value
}

// NewReflectDispatcher builds a Func from a set of receivers, the way
// clusterrpc's teacher built its service map from registered receivers.
// Unlike the teacher's Args/Reply RPC signature, the method convention
// here is:
//
//	func (receiver) ProcedureName(ctx *dispatch.Context)
//
// The struct's name becomes the service name (e.g., &Echo{} → "Echo"), and
// each exported method matching the signature becomes a procedure. Methods
// that don't match are silently skipped, exactly as the teacher's
// RegisterMethods does for non-RPC-shaped methods.
func NewReflectDispatcher(receivers ...any) (Func, error) {
	services := make(map[string]*service, len(receivers))

	for _, rcvr := range receivers {
		typ := reflect.TypeOf(rcvr)
		if typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("dispatch: receiver must be a pointer to a struct, got %s", typ)
		}

		svc := &service{
			name:    typ.Elem().Name(),
			rcvr:    reflect.ValueOf(rcvr),
			methods: make(map[string]reflect.Value),
		}

		for i := 0; i < typ.NumMethod(); i++ {
			method := typ.Method(i)
			if method.Type.NumIn() != 2 || method.Type.NumOut() != 0 {
				continue
			}
			if method.Type.In(1) != contextType {
				continue
			}
			svc.methods[method.Name] = method.Func
		}

		if _, exists := services[svc.name]; exists {
			return nil, fmt.Errorf("dispatch: duplicate service name %q", svc.name)
		}
		services[svc.name] = svc
	}

	return func(serviceName, procedure string) Handler {
		svc, ok := services[serviceName]
		if !ok {
			return nil
		}
		method, ok := svc.methods[procedure]
		if !ok {
			return nil
		}
		return func(ctx *Context) {
			method.Call([]reflect.Value{svc.rcvr, reflect.ValueOf(ctx)})
		}
	}, nil
}
