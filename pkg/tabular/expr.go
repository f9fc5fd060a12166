package tabular

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// programCache is an LRU of compiled expr-lang programs keyed by source
// text, grounded on the teacher's pkg/engine/condition_cache.go (a
// container/list + sync.RWMutex LRU around expr.Compile/vm.Run). Filter and
// Derive both compile once per distinct expression and reuse the program
// across every row.
type programCache struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

func newProgramCache(capacity int) *programCache {
	return &programCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *programCache) get(src string) (*vm.Program, bool) {
	c.mu.RLock()
	el, ok := c.items[src]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	c.order.MoveToFront(el)
	c.mu.Unlock()
	return el.Value.(*cacheEntry).program, true
}

func (c *programCache) put(src string, prog *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[src]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).program = prog
		return
	}
	el := c.order.PushFront(&cacheEntry{key: src, program: prog})
	c.items[src] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

var defaultProgramCache = newProgramCache(512)

func compileCached(src string) (*vm.Program, error) {
	if prog, ok := defaultProgramCache.get(src); ok {
		return prog, nil
	}
	prog, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compiling expression %q: %w", src, err)
	}
	defaultProgramCache.put(src, prog)
	return prog, nil
}

// evalBool compiles (or reuses) src and runs it against env, expecting a
// boolean result — the shape of a Filter predicate (LogicalPlan Filter
// operator, spec §4.4).
func evalBool(src string, env map[string]any) (bool, error) {
	if src == "" {
		return true, nil
	}
	prog, err := compileCached(src)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluating predicate %q: %w", src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("predicate %q did not evaluate to a boolean (got %T)", src, out)
	}
	return b, nil
}

// evalValue compiles (or reuses) src and runs it against env, returning the
// boxed result — the shape of a Derive operator's formula (spec §4.4 "Derive:
// evaluate rule.formula ... producing one new column").
func evalValue(src string, env map[string]any) (any, error) {
	prog, err := compileCached(src)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return nil, fmt.Errorf("evaluating expression %q: %w", src, err)
	}
	return out, nil
}
