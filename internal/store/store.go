// Package store provides a uniform read/write/watch interface over shared
// document collections. Watches are push-driven: every write affecting a
// query's result set redelivers the entire current result set to every
// watcher of that query; dedup, sorting and diffing are the consumer's job.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
)

var (
	// ErrNotFound is returned by Get and Update when the key is absent.
	ErrNotFound = errors.New("store: document not found")
	// ErrAlreadyExists is returned by Create when the key is taken.
	ErrAlreadyExists = errors.New("store: document already exists")
	// ErrUnavailable is returned when the backend has no connectivity and
	// no cached answer. It must never be read as "does not exist".
	ErrUnavailable = errors.New("store: unavailable")
)

// Doc is a schemaless document as held by a collection.
type Doc = map[string]any

// Snapshot is one document plus its store-assigned or caller-chosen key.
type Snapshot struct {
	ID   string
	Data Doc
}

// Contains matches documents whose array field contains a value.
type Contains struct {
	Field string
	Value string
}

// Query selects documents inside one collection. Key watches a single
// document; Contains filters on array membership; OrderBy sorts by a
// numeric field, falling back to key order for equal values.
type Query struct {
	Collection string
	Key        string
	Contains   Contains
	OrderBy    string
	Desc       bool
}

// CancelFunc stops a watch. It is synchronous and idempotent.
type CancelFunc func()

// Adapter is the store contract every component above depends on.
type Adapter interface {
	// Get fetches one document. ErrNotFound if absent.
	Get(ctx context.Context, collection, key string) (Doc, error)
	// Create stores a new document. ErrAlreadyExists if the key is taken.
	Create(ctx context.Context, collection, key string, doc Doc) error
	// Update applies mutations to an existing document atomically.
	// ErrNotFound if absent.
	Update(ctx context.Context, collection, key string, muts ...Mutation) error
	// Append stores a document under a store-assigned id and returns it.
	Append(ctx context.Context, collection string, doc Doc) (string, error)
	// Watch delivers the full current result set of q now and after every
	// write that touches the collection.
	Watch(ctx context.Context, q Query, fn func([]Snapshot)) (CancelFunc, error)
}

// Encode converts a typed value into a Doc via its JSON form.
func Encode(v any) (Doc, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Decode fills a typed value from a Doc via its JSON form.
func Decode(doc Doc, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (q Query) matches(s Snapshot) bool {
	if q.Key != "" && s.ID != q.Key {
		return false
	}
	if q.Contains.Field != "" {
		arr, ok := s.Data[q.Contains.Field].([]any)
		if !ok {
			return false
		}
		found := false
		for _, el := range arr {
			if str, ok := el.(string); ok && str == q.Contains.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sortSnapshots orders a result set: by the OrderBy field when set, key
// order otherwise, key order as tie-break either way.
func sortSnapshots(snaps []Snapshot, q Query) {
	sort.Slice(snaps, func(i, j int) bool {
		if q.OrderBy != "" {
			vi, vj := orderValue(snaps[i].Data, q.OrderBy), orderValue(snaps[j].Data, q.OrderBy)
			if vi != vj {
				if q.Desc {
					return vi > vj
				}
				return vi < vj
			}
		}
		return snaps[i].ID < snaps[j].ID
	})
}

// orderValue extracts the sort key for OrderBy. Documents come back from
// JSON with numbers as float64.
func orderValue(d Doc, field string) float64 {
	switch v := d[field].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
