package index

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/JonMunkholm/tabledock/internal/core"
)

// Memory is an in-process index. Like Solr, changes made without commit
// stay invisible to queries until the next Commit on that core.
type Memory struct {
	mu      sync.RWMutex
	cores   map[string]map[string]map[string]any
	pending map[string][]op
}

type op struct {
	add    map[string]any
	delete *Query
}

var _ core.Index = (*Memory)(nil)

// NewMemory returns an empty in-process index.
func NewMemory() *Memory {
	return &Memory{
		cores:   make(map[string]map[string]map[string]any),
		pending: make(map[string][]op),
	}
}

func (m *Memory) Add(_ context.Context, coreName string, docs []map[string]any, commit bool) error {
	ops := make([]op, 0, len(docs))
	for _, d := range docs {
		if _, ok := d[core.FieldID].(string); !ok {
			return fmt.Errorf("add to %s: document without string id", coreName)
		}
		ops = append(ops, op{add: maps.Clone(d)})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[coreName] = append(m.pending[coreName], ops...)
	if commit {
		m.commitLocked(coreName)
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, coreName, query string, commit bool) error {
	q, err := ParseQuery(query)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[coreName] = append(m.pending[coreName], op{delete: &q})
	if commit {
		m.commitLocked(coreName)
	}
	return nil
}

func (m *Memory) Commit(_ context.Context, coreName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitLocked(coreName)
	return nil
}

func (m *Memory) commitLocked(coreName string) {
	docs := m.cores[coreName]
	if docs == nil {
		docs = make(map[string]map[string]any)
		m.cores[coreName] = docs
	}
	for _, o := range m.pending[coreName] {
		if o.add != nil {
			docs[o.add[core.FieldID].(string)] = o.add
			continue
		}
		for id, d := range docs {
			if o.delete.Match(d) {
				delete(docs, id)
			}
		}
	}
	delete(m.pending, coreName)
}

func (m *Memory) Query(_ context.Context, coreName, query string, opts core.QueryOptions) (*core.QueryResult, error) {
	q, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}
	keys, err := ParseSort(opts.Sort)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var matched []map[string]any
	for _, d := range m.cores[coreName] {
		if q.Match(d) {
			matched = append(matched, d)
		}
	}
	m.mu.RUnlock()

	res := &core.QueryResult{NumFound: int64(len(matched))}
	offset := max(opts.Offset, 0)
	if opts.Limit <= 0 || offset >= len(matched) {
		return res, nil
	}

	keys = append(keys, SortKey{Field: core.FieldID})
	sort.SliceStable(matched, func(i, j int) bool { return Less(keys, matched[i], matched[j]) })

	end := min(offset+opts.Limit, len(matched))
	res.Docs = make([]map[string]any, 0, end-offset)
	for _, d := range matched[offset:end] {
		res.Docs = append(res.Docs, maps.Clone(d))
	}
	return res, nil
}
