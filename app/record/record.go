// Package record implements persistent typed attribute records with change tracking.
//
// A record is a set of named attributes, each either a string or a date. Writes are kept
// in memory and marked dirty until Flush hands them to the backing Store in one batch.
package record

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Type int

const (
	Absent Type = iota
	String
	Date
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Date:
		return "date"
	default:
		return "absent"
	}
}

const (
	indexName    = "keys"
	stringTag    = "s|"
	dateTag      = "d|"
	dateLayout   = time.RFC3339
	keySeparator = " "
)

type value struct {
	typ  Type
	text string
	date time.Time
}

type Record struct {
	id    string
	store Store

	values    map[string]value
	dirty     map[string]bool
	pinned    map[string]bool
	persisted map[string]bool
	deleted   bool
}

func New(store Store, id string) *Record {
	return &Record{
		id:        id,
		store:     store,
		values:    make(map[string]value),
		dirty:     make(map[string]bool),
		pinned:    make(map[string]bool),
		persisted: make(map[string]bool),
	}
}

func (r *Record) RecordID() string {
	return r.id
}

func (r *Record) Store() Store {
	return r.store
}

// Set stores a string attribute.
func (r *Record) Set(name, text string) {
	r.write(name, value{typ: String, text: text})
}

// SetDate stores a date attribute, normalised to UTC with second precision.
func (r *Record) SetDate(name string, t time.Time) {
	r.write(name, value{typ: Date, date: t.UTC().Truncate(time.Second)})
}

// Unset makes the attribute absent. The persisted form is removed on the next flush.
func (r *Record) Unset(name string) {
	r.write(name, value{typ: Absent})
}

// Override stores a string attribute supplied by configuration. It is never written to
// the store and Load does not replace it.
func (r *Record) Override(name, text string) {
	r.values[name] = value{typ: String, text: text}
	r.pinned[name] = true
	delete(r.dirty, name)
}

// Pinned reports whether the attribute currently holds a configuration override.
func (r *Record) Pinned(name string) bool {
	return r.pinned[name]
}

func (r *Record) write(name string, v value) {
	if r.pinned[name] {
		delete(r.pinned, name)
	}
	r.values[name] = v
	r.dirty[name] = true
}

func (r *Record) Type(name string) Type {
	return r.values[name].typ
}

func (r *Record) Has(name string) bool {
	return r.values[name].typ != Absent
}

// Get returns the value of a string attribute. Date and absent attributes report false.
func (r *Record) Get(name string) (string, bool) {
	v := r.values[name]
	if v.typ != String {
		return "", false
	}
	return v.text, true
}

// Date returns the value of a date attribute. String and absent attributes report false.
func (r *Record) Date(name string) (time.Time, bool) {
	v := r.values[name]
	if v.typ != Date {
		return time.Time{}, false
	}
	return v.date, true
}

// Names lists the present attributes in lexical order.
func (r *Record) Names() []string {
	names := make([]string, 0, len(r.values))
	for name, v := range r.values {
		if v.typ != Absent {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Record) Dirty() bool {
	return len(r.dirty) > 0 || r.deleted
}

func (r *Record) MarkDeleted() {
	r.deleted = true
}

// Restore cancels a deletion that has not been flushed yet. Pending writes are kept.
func (r *Record) Restore() {
	r.deleted = false
}

func (r *Record) Deleted() bool {
	return r.deleted
}

// Load fills every attribute not already present in memory from the store.
func (r *Record) Load() error {
	index, ok, err := r.store.Get(r.key(indexName))
	if err != nil {
		return fmt.Errorf("failed to read index of %q: %w", r.id, err)
	}
	if !ok {
		return nil
	}

	for _, name := range strings.Fields(index) {
		r.persisted[name] = true
		if _, set := r.values[name]; set {
			continue
		}

		raw, ok, err := r.store.Get(r.key(name))
		if err != nil {
			return fmt.Errorf("failed to read %q of %q: %w", name, r.id, err)
		}
		if !ok {
			continue
		}

		v, err := decode(raw)
		if err != nil {
			return fmt.Errorf("failed to decode %q of %q: %w", name, r.id, err)
		}
		r.values[name] = v
	}

	return nil
}

// Changes lists the store writes needed to persist the record. A deleted record yields
// deletes for everything it ever persisted.
func (r *Record) Changes() []Change {
	if r.deleted {
		changes := make([]Change, 0, len(r.persisted)+1)
		for _, name := range sortedKeys(r.persisted) {
			changes = append(changes, Change{Key: r.key(name), Delete: true})
		}
		return append(changes, Change{Key: r.key(indexName), Delete: true})
	}

	if len(r.dirty) == 0 {
		return nil
	}

	changes := make([]Change, 0, len(r.dirty)+1)
	for _, name := range sortedKeys(r.dirty) {
		v := r.values[name]
		if v.typ == Absent {
			changes = append(changes, Change{Key: r.key(name), Delete: true})
			continue
		}
		changes = append(changes, Change{Key: r.key(name), Value: encode(v)})
	}

	return append(changes, Change{Key: r.key(indexName), Value: strings.Join(r.indexAfterCommit(), keySeparator)})
}

// Commit clears the dirty markers once the output of Changes has been applied.
func (r *Record) Commit() {
	if r.deleted {
		r.persisted = make(map[string]bool)
		r.dirty = make(map[string]bool)
		return
	}
	for _, name := range r.indexAfterCommit() {
		r.persisted[name] = true
	}
	for name := range r.dirty {
		if r.values[name].typ == Absent {
			delete(r.persisted, name)
		}
	}
	r.dirty = make(map[string]bool)
}

// Flush writes the pending changes of this record alone.
func (r *Record) Flush() error {
	changes := r.Changes()
	if len(changes) == 0 {
		return nil
	}
	if err := r.store.Apply(changes); err != nil {
		return fmt.Errorf("failed to flush %q: %w", r.id, err)
	}
	r.Commit()
	return nil
}

func (r *Record) indexAfterCommit() []string {
	names := make(map[string]bool, len(r.persisted)+len(r.dirty))
	for name := range r.persisted {
		names[name] = true
	}
	for name := range r.dirty {
		if r.values[name].typ == Absent {
			delete(names, name)
		} else {
			names[name] = true
		}
	}
	return sortedKeys(names)
}

func (r *Record) key(name string) string {
	return r.id + keySeparator + name
}

// IDs enumerates the records stored under prefix, returning ids with the prefix removed.
func IDs(store Store, prefix string) ([]string, error) {
	keys, err := store.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate keys: %w", err)
	}

	suffix := keySeparator + indexName
	var ids []string
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func encode(v value) string {
	if v.typ == Date {
		return dateTag + v.date.Format(dateLayout)
	}
	return stringTag + v.text
}

func decode(raw string) (value, error) {
	switch {
	case strings.HasPrefix(raw, stringTag):
		return value{typ: String, text: raw[len(stringTag):]}, nil
	case strings.HasPrefix(raw, dateTag):
		t, err := time.Parse(dateLayout, raw[len(dateTag):])
		if err != nil {
			return value{}, err
		}
		return value{typ: Date, date: t.UTC()}, nil
	default:
		return value{}, fmt.Errorf("unknown value tag in %q", raw)
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
