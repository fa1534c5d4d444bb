package store

type mutationOp int

const (
	opSet mutationOp = iota
	opSetAdd
	opSetRemove
)

// Mutation is a single-field change applied atomically with the rest of its
// Update call.
type Mutation struct {
	op    mutationOp
	field string
	value any
	elem  string
}

// Set overwrites a field.
func Set(field string, value any) Mutation {
	return Mutation{op: opSet, field: field, value: value}
}

// SetAdd inserts elem into an array field treated as a set. No-op if the
// element is already present.
func SetAdd(field, elem string) Mutation {
	return Mutation{op: opSetAdd, field: field, elem: elem}
}

// SetRemove deletes elem from an array field treated as a set. No-op if the
// element is absent.
func SetRemove(field, elem string) Mutation {
	return Mutation{op: opSetRemove, field: field, elem: elem}
}

// apply mutates doc in place.
func apply(doc Doc, muts []Mutation) {
	for _, m := range muts {
		switch m.op {
		case opSet:
			doc[m.field] = m.value
		case opSetAdd:
			arr := toStringSlice(doc[m.field])
			present := false
			for _, el := range arr {
				if el == m.elem {
					present = true
					break
				}
			}
			if !present {
				arr = append(arr, m.elem)
			}
			doc[m.field] = toAnySlice(arr)
		case opSetRemove:
			arr := toStringSlice(doc[m.field])
			out := arr[:0]
			for _, el := range arr {
				if el != m.elem {
					out = append(out, el)
				}
			}
			doc[m.field] = toAnySlice(out)
		}
	}
}

func toStringSlice(v any) []string {
	switch arr := v.(type) {
	case []any:
		out := make([]string, 0, len(arr))
		for _, el := range arr {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), arr...)
	default:
		return nil
	}
}

func toAnySlice(arr []string) []any {
	out := make([]any, len(arr))
	for i, el := range arr {
		out[i] = el
	}
	return out
}
