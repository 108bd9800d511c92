package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"inkwell/api/internal/article"
)

type Registry struct {
	ops map[string]Operation
}

func NewRegistry(ops ...Operation) (*Registry, error) {
	r := &Registry{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		if _, dup := r.ops[op.Name()]; dup {
			return nil, fmt.Errorf("operation %q registered twice", op.Name())
		}
		r.ops[op.Name()] = op
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch validates payload for the named operation and executes it on
// behalf of userID.
func (r *Registry) Dispatch(ctx context.Context, name, userID string, payload json.RawMessage) (any, error) {
	op, ok := r.ops[name]
	if !ok {
		return nil, &article.Error{Kind: article.KindNotFound, Code: "UNKNOWN_OPERATION", Message: fmt.Sprintf("unknown operation %q", name)}
	}
	input, err := op.Validate(payload)
	if err != nil {
		return nil, err
	}
	return op.Execute(ctx, userID, input)
}
