package config

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/bft-labs/edgevisor/internal/ports"
)

type subscription struct {
	prefix []string
	fn     func(ports.Change)
}

// Tree is an in-memory hierarchical ConfigSource. Interior nodes are
// map[string]any; everything else is a leaf.
type Tree struct {
	mu   sync.RWMutex
	root map[string]any

	subMu  sync.Mutex
	subs   map[uint64]subscription
	nextID uint64
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{
		root: map[string]any{},
		subs: map[uint64]subscription{},
	}
}

// Find returns the value at path. Interior nodes are returned as a deep copy.
func (t *Tree) Find(path ...string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := lookup(t.root, path)
	if !ok {
		return nil, false
	}
	return clone(v), true
}

// Subscribe calls fn for every change at or below path.
func (t *Tree) Subscribe(fn func(ports.Change), path ...string) (cancel func()) {
	t.subMu.Lock()
	t.nextID++
	id := t.nextID
	t.subs[id] = subscription{prefix: append([]string(nil), path...), fn: fn}
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, id)
			t.subMu.Unlock()
		})
	}
}

// Set stores value at path, replacing whatever was there. Map values
// replace the whole subtree.
func (t *Tree) Set(value any, path ...string) {
	value = normalize(value)
	if len(path) == 0 {
		if m, ok := value.(map[string]any); ok {
			t.Replace(m)
		}
		return
	}
	t.mutate(func(root map[string]any) {
		parent := root
		for _, key := range path[:len(path)-1] {
			next, ok := parent[key].(map[string]any)
			if !ok {
				next = map[string]any{}
				parent[key] = next
			}
			parent = next
		}
		parent[path[len(path)-1]] = value
	})
}

// Remove deletes the node at path and everything below it.
func (t *Tree) Remove(path ...string) {
	if len(path) == 0 {
		t.Replace(map[string]any{})
		return
	}
	t.mutate(func(root map[string]any) {
		if parent, ok := lookup(root, path[:len(path)-1]); ok {
			if m, ok := parent.(map[string]any); ok {
				delete(m, path[len(path)-1])
			}
		}
	})
}

// mutate applies fn to a copy of the tree, swaps it in and notifies the
// resulting differences.
func (t *Tree) mutate(fn func(root map[string]any)) {
	t.mu.Lock()
	next := clone(t.root).(map[string]any)
	fn(next)
	changes := diff(nil, t.root, true, next, true)
	t.root = next
	t.mu.Unlock()

	t.notify(changes)
}

// Replace swaps the whole tree for root and notifies every difference.
func (t *Tree) Replace(root map[string]any) {
	next, _ := normalize(root).(map[string]any)
	if next == nil {
		next = map[string]any{}
	}

	t.mu.Lock()
	changes := diff(nil, t.root, true, next, true)
	t.root = next
	t.mu.Unlock()

	t.notify(changes)
}

func (t *Tree) notify(changes []ports.Change) {
	if len(changes) == 0 {
		return
	}
	t.subMu.Lock()
	ids := make([]uint64, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	subs := make([]subscription, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, t.subs[id])
	}
	t.subMu.Unlock()

	for _, c := range changes {
		for _, s := range subs {
			if hasPrefix(c.Path, s.prefix) {
				s.fn(c)
			}
		}
	}
}

func lookup(root map[string]any, path []string) (any, bool) {
	var cur any = root
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func hasPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}

// diff lists the leaf changes turning before into after at path.
func diff(path []string, before any, hadBefore bool, after any, hasAfter bool) []ports.Change {
	var out []ports.Change
	walkDiff(path, before, hadBefore, after, hasAfter, &out)
	return out
}

func walkDiff(path []string, before any, hadBefore bool, after any, hasAfter bool, out *[]ports.Change) {
	om, beforeIsMap := before.(map[string]any)
	nm, afterIsMap := after.(map[string]any)
	beforeIsMap = beforeIsMap && hadBefore
	afterIsMap = afterIsMap && hasAfter

	switch {
	case beforeIsMap && afterIsMap:
		if len(om) == 0 && len(nm) == 0 {
			return
		}
		for _, key := range unionKeys(om, nm) {
			ov, ook := om[key]
			nv, nok := nm[key]
			walkDiff(child(path, key), ov, ook, nv, nok, out)
		}
	case beforeIsMap:
		if len(om) == 0 {
			*out = append(*out, ports.Change{Kind: ports.ChangeRemoved, Path: path, Value: map[string]any{}})
		}
		for _, key := range sortedKeys(om) {
			walkDiff(child(path, key), om[key], true, nil, false, out)
		}
		if hasAfter {
			*out = append(*out, ports.Change{Kind: ports.ChangeCreated, Path: path, Value: clone(after)})
		}
	case afterIsMap:
		if hadBefore {
			*out = append(*out, ports.Change{Kind: ports.ChangeRemoved, Path: path, Value: clone(before)})
		}
		if len(nm) == 0 {
			*out = append(*out, ports.Change{Kind: ports.ChangeCreated, Path: path, Value: map[string]any{}})
		}
		for _, key := range sortedKeys(nm) {
			walkDiff(child(path, key), nil, false, nm[key], true, out)
		}
	case hadBefore && hasAfter:
		if !reflect.DeepEqual(before, after) {
			*out = append(*out, ports.Change{Kind: ports.ChangeUpdated, Path: path, Value: clone(after)})
		}
	case hadBefore:
		*out = append(*out, ports.Change{Kind: ports.ChangeRemoved, Path: path, Value: clone(before)})
	case hasAfter:
		*out = append(*out, ports.Change{Kind: ports.ChangeCreated, Path: path, Value: clone(after)})
	}
}

func child(path []string, key string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = key
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize converts decoder output into map[string]any / []any trees.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[toKey(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}

func toKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return strings.TrimSpace(ToString(k))
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = clone(val)
		}
		return out
	}
	return v
}

var _ ports.ConfigSource = (*Tree)(nil)
