package entity

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memRelation is the untyped view memDB needs of each table to enforce
// foreign keys across them.
type memRelation interface {
	has(id int64) bool
	references() []ref
	matching(column string, id int64) []int64
	remove(id int64)
}

// memDB holds every in-memory table behind one lock.
type memDB struct {
	mu     sync.RWMutex
	tables map[string]memRelation
}

// NewMemory returns a repository kept in process memory.
func NewMemory() *Repository {
	db := &memDB{tables: make(map[string]memRelation)}
	return &Repository{
		Customers:       newMemTable(db, customerSchema),
		Management:      newMemTable(db, managementSchema),
		CustomerUsers:   newMemTable(db, customerUserSchema),
		ManagementUsers: newMemTable(db, managementUserSchema),
		Machines:        newMemTable(db, machineSchema),
		Serials:         newMemTable(db, serialSchema),
	}
}

// deleteLocked removes row id of table and, first, every row that
// references it.
func (db *memDB) deleteLocked(table string, id int64) {
	for name, rel := range db.tables {
		for _, r := range rel.references() {
			if r.table != table {
				continue
			}
			for _, child := range rel.matching(r.column, id) {
				db.deleteLocked(name, child)
			}
		}
	}
	db.tables[table].remove(id)
}

type memTable[T any] struct {
	db     *memDB
	schema schema[T]
	rows   map[int64]T
	nextID int64
}

func newMemTable[T any](db *memDB, s schema[T]) *memTable[T] {
	t := &memTable[T]{db: db, schema: s, rows: make(map[int64]T)}
	db.tables[s.table] = t
	return t
}

func (t *memTable[T]) has(id int64) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *memTable[T]) references() []ref { return t.schema.refs }

func (t *memTable[T]) matching(column string, id int64) []int64 {
	idx, err := t.schema.columnIndex(column)
	if err != nil {
		return nil
	}
	var ids []int64
	for rowID, row := range t.rows {
		if deref(t.schema.fields(&row)[idx]) == id {
			ids = append(ids, rowID)
		}
	}
	return ids
}

func (t *memTable[T]) remove(id int64) {
	delete(t.rows, id)
}

// check enforces unique columns and foreign keys for v, ignoring row self.
func (t *memTable[T]) check(v *T, self int64) error {
	fields := t.schema.fields(v)
	for _, column := range t.schema.unique {
		idx, err := t.schema.columnIndex(column)
		if err != nil {
			return err
		}
		want := deref(fields[idx])
		for id, row := range t.rows {
			if id != self && deref(t.schema.fields(&row)[idx]) == want {
				return fmt.Errorf("%w: %s.%s %v already exists", ErrConflict, t.schema.table, column, want)
			}
		}
	}
	for _, r := range t.schema.refs {
		idx, err := t.schema.columnIndex(r.column)
		if err != nil {
			return err
		}
		target, _ := deref(fields[idx]).(int64)
		parent, ok := t.db.tables[r.table]
		if !ok || !parent.has(target) {
			return fmt.Errorf("%w: %s.%s references missing %s %d", ErrConflict, t.schema.table, r.column, r.table, target)
		}
	}
	return nil
}

func (t *memTable[T]) Create(_ context.Context, v *T) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	if err := t.check(v, 0); err != nil {
		return err
	}
	t.nextID++
	*t.schema.id(v) = t.nextID
	t.rows[t.nextID] = *v
	return nil
}

func (t *memTable[T]) Get(_ context.Context, id int64) (T, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()

	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %d: %w", t.schema.table, id, ErrNotFound)
	}
	return row, nil
}

func (t *memTable[T]) List(_ context.Context, filters ...Filter) ([]T, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()

	idx := make([]int, len(filters))
	for i, f := range filters {
		n, err := t.schema.columnIndex(f.Column)
		if err != nil {
			return nil, err
		}
		idx[i] = n
	}

	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]T, 0, len(ids))
rows:
	for _, id := range ids {
		row := t.rows[id]
		fields := t.schema.fields(&row)
		for i, f := range filters {
			if deref(fields[idx[i]]) != normalize(f.Value) {
				continue rows
			}
		}
		result = append(result, row)
	}
	return result, nil
}

func (t *memTable[T]) Update(_ context.Context, id int64, v *T) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	if _, ok := t.rows[id]; !ok {
		return fmt.Errorf("%s %d: %w", t.schema.table, id, ErrNotFound)
	}
	if err := t.check(v, id); err != nil {
		return err
	}
	*t.schema.id(v) = id
	t.rows[id] = *v
	return nil
}

func (t *memTable[T]) Delete(_ context.Context, id int64) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	if _, ok := t.rows[id]; !ok {
		return fmt.Errorf("%s %d: %w", t.schema.table, id, ErrNotFound)
	}
	t.db.deleteLocked(t.schema.table, id)
	return nil
}
