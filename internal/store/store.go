package store

import (
	"fmt"
	"sort"

	"raid-health-check/pkg/types"
)

// Store holds the tables extracted during one monitoring run, grouped
// by subsystem instance (a controller, an md array, a pool).
type Store struct {
	instances map[string]map[string]types.Table
	frozen    bool
}

// New creates an empty store
func New() *Store {
	return &Store{instances: make(map[string]map[string]types.Table)}
}

// Put stores one record, replacing any record with the same key
func (s *Store) Put(instance, table, key string, record types.Record) {
	s.table(instance, table)[key] = record
}

// PutTable stores every record of t. An empty table is still recorded so
// that an absent table reads back as present and healthy.
func (s *Store) PutTable(instance, table string, t types.Table) {
	dst := s.table(instance, table)
	for key, record := range t {
		dst[key] = record
	}
}

// Get returns the named table of an instance, or nil
func (s *Store) Get(instance, table string) types.Table {
	return s.instances[instance][table]
}

// Instances returns the instance ids in sorted order
func (s *Store) Instances() []string {
	ids := make([]string, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tables returns the table names of an instance in sorted order
func (s *Store) Tables(instance string) []string {
	tables := s.instances[instance]
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of records held across all instances
func (s *Store) Len() int {
	n := 0
	for _, tables := range s.instances {
		for _, t := range tables {
			n += len(t)
		}
	}
	return n
}

// Freeze ends the collection phase. Writes after Freeze panic.
func (s *Store) Freeze() {
	s.frozen = true
}

// Frozen reports whether Freeze has been called
func (s *Store) Frozen() bool {
	return s.frozen
}

func (s *Store) table(instance, table string) types.Table {
	if s.frozen {
		panic(fmt.Sprintf("store: write to %s/%s after freeze", instance, table))
	}
	tables, ok := s.instances[instance]
	if !ok {
		tables = make(map[string]types.Table)
		s.instances[instance] = tables
	}
	t, ok := tables[table]
	if !ok {
		t = types.Table{}
		tables[table] = t
	}
	return t
}
