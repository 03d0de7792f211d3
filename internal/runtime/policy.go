package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/zskulcsar/code-duplication-scanner/internal/pylang"
)

// PolicyInput is the project index as policy scripts see it. Each field is
// bound to a global list of strings of the same (snake_case) name.
type PolicyInput struct {
	Candidates      []string
	Attributes      []string
	ClassNames      []string
	ExternalSymbols []string
	// Files holds absolute paths, so scripts can hand them to parse.
	Files []string
}

// RunPolicy executes the script ref with the index bound as globals and
// returns the names it passed to preserve, sorted and deduplicated.
func (r *Runtime) RunPolicy(ctx context.Context, ref string, in PolicyInput) ([]string, error) {
	kept := &preservedSet{names: make(map[string]struct{})}
	extras := map[string]any{
		"candidates":       stringList(in.Candidates),
		"attributes":       stringList(in.Attributes),
		"class_names":      stringList(in.ClassNames),
		"external_symbols": stringList(in.ExternalSymbols),
		"files":            stringList(in.Files),
		"preserve":         makePreserveFn(kept, r.logger),
	}
	if err := r.RunScript(ctx, ref, extras); err != nil {
		return nil, err
	}
	names := kept.sorted()
	r.logger.Debug("policy finished", zap.String("policy", ref), zap.Int("preserved", len(names)))
	return names, nil
}

type preservedSet struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func (p *preservedSet) add(name string) {
	p.mu.Lock()
	p.names[name] = struct{}{}
	p.mu.Unlock()
}

func (p *preservedSet) sorted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.names))
	for n := range p.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// makePreserveFn creates the "preserve" host function.
//
// preserve(name) or preserve([name, ...]) → nil
//
// Strings that are not Python identifiers are skipped.
func makePreserveFn(kept *preservedSet, logger *zap.Logger) *object.Builtin {
	return object.NewBuiltin("preserve", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("preserve", 1, len(args))
		}
		var items []object.Object
		switch v := args[0].(type) {
		case *object.List:
			items = v.Value()
		default:
			items = []object.Object{v}
		}
		for _, item := range items {
			name, err := toString(item)
			if err != nil {
				return object.Errorf("preserve: %v", err)
			}
			if !pylang.IsIdentifier(name) {
				logger.Debug("preserve: skipping non-identifier", zap.String("name", name))
				continue
			}
			kept.add(name)
		}
		return object.Nil
	})
}

func stringList(values []string) *object.List {
	items := make([]object.Object, len(values))
	for i, v := range values {
		items[i] = object.NewString(v)
	}
	return object.NewList(items)
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
