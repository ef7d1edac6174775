package ops

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/oshokin/quaso-pack/internal/logger"
)

// Args holds named operation arguments.
type Args map[string]string

// Get returns the named argument, or "".
func (a Args) Get(name string) string {
	return a[name]
}

// Bool interprets the named argument as a boolean; anything unparsable is false.
func (a Args) Bool(name string) bool {
	v, err := strconv.ParseBool(a[name])

	return err == nil && v
}

// Param declares an operation parameter and its default.
type Param struct {
	Name    string
	Default string
	Usage   string
}

// Func is the body of an operation. Args always carries every declared parameter.
type Func func(ctx context.Context, args Args) error

// Operation is a named, parameterized unit of work.
type Operation struct {
	Name   string
	Usage  string
	Params []Param
	Run    Func
}

// Param returns the declared parameter by name.
func (o *Operation) Param(name string) (Param, bool) {
	idx := slices.IndexFunc(o.Params, func(p Param) bool { return p.Name == name })
	if idx < 0 {
		return Param{}, false
	}

	return o.Params[idx], true
}

var (
	// ErrUnknownOperation is returned when invoking a name that was never registered.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrUnknownParam is returned for an argument the operation does not declare.
	ErrUnknownParam = errors.New("unknown parameter")
	// ErrDuplicateOperation is returned when a name is registered twice.
	ErrDuplicateOperation = errors.New("operation already registered")
	// ErrCycle is returned when an operation invokes itself through the call graph.
	ErrCycle = errors.New("operation cycle")
	// errInvalidOperation is returned for an operation without a name or body.
	errInvalidOperation = errors.New("operation needs a name and a body")
)

// Registry maps operation names onto operations.
type Registry struct {
	mu    sync.RWMutex
	ops   map[string]*Operation
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operation)}
}

// Register adds an operation.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" || op.Run == nil {
		return errInvalidOperation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ops[op.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, op.Name)
	}

	op.Params = slices.Clone(op.Params)
	r.ops[op.Name] = &op
	r.order = append(r.order, op.Name)

	return nil
}

// MustRegister is Register for wiring code; it panics on error.
func (r *Registry) MustRegister(op Operation) {
	if err := r.Register(op); err != nil {
		panic(err)
	}
}

// Lookup returns a registered operation by name.
func (r *Registry) Lookup(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[name]
	if !ok {
		return Operation{}, false
	}

	return *op, true
}

// Operations lists the operations in registration order.
func (r *Registry) Operations() []Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Operation, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, *r.ops[name])
	}

	return result
}

// Invoke runs the named operation. Missing arguments take their declared
// defaults; undeclared ones are rejected before anything runs.
func (r *Registry) Invoke(ctx context.Context, name string, args Args) error {
	op, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}

	stack := callStack(ctx)
	if slices.Contains(stack, name) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, strings.Join(stack, " -> "), name)
	}

	resolved, err := resolveArgs(&op, args)
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, callStackKey{}, append(slices.Clone(stack), name))

	logger.DebugKV(ctx, "Invoking operation", "operation", name, "args", resolved)

	return op.Run(ctx, resolved)
}

func resolveArgs(op *Operation, args Args) (Args, error) {
	resolved := make(Args, len(op.Params))

	for key := range args {
		if _, ok := op.Param(key); !ok {
			return nil, fmt.Errorf("%w %q for operation %s", ErrUnknownParam, key, op.Name)
		}
	}

	for _, p := range op.Params {
		if v, ok := args[p.Name]; ok {
			resolved[p.Name] = v
		} else {
			resolved[p.Name] = p.Default
		}
	}

	return resolved, nil
}

// callStackKey carries the names of the operations currently running.
type callStackKey struct{}

func callStack(ctx context.Context) []string {
	stack, _ := ctx.Value(callStackKey{}).([]string)

	return stack
}
