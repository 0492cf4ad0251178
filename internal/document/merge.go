package document

// Merge deep-merges old into target, mutating and returning target. Map keys
// absent from target are copied over; keys present in both recurse. List
// values from old are prepended to target's list preserving their order;
// with unique set, old items already present in target are skipped (unique
// applies to the top level only). Scalar conflicts keep target's value, so
// the newer document wins per key.
func Merge(old, target any, unique bool) any {
	switch o := old.(type) {
	case []any:
		n, ok := target.([]any)
		if !ok {
			return target
		}
		if listsEqual(o, n) {
			return n
		}
		for i := len(o) - 1; i >= 0; i-- {
			if unique && containsItem(n, o[i]) {
				continue
			}
			n = append([]any{o[i]}, n...)
		}
		return n
	case map[string]any:
		n, ok := target.(map[string]any)
		if !ok {
			return target
		}
		for key, value := range o {
			if _, present := n[key]; !present {
				n[key] = deepCopy(value)
			} else {
				n[key] = Merge(value, n[key], false)
			}
		}
		return n
	}
	return target
}

// MergeDocuments merges the stored document under the incoming one and
// returns the result, leaving both inputs untouched.
func MergeDocuments(stored, incoming Document) Document {
	merged := incoming.Clone()
	Merge(map[string]any(stored.Clone()), map[string]any(merged), false)
	return merged
}

func listsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !itemsEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func containsItem(list []any, item any) bool {
	for _, e := range list {
		if itemsEqual(e, item) {
			return true
		}
	}
	return false
}

func itemsEqual(a, b any) bool {
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, present := y[k]
			if !present || !itemsEqual(v, w) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok {
			return false
		}
		return listsEqual(x, y)
	default:
		return a == b
	}
}
