package vulkan

// table maps opaque hal handles to driver objects. Handles start at 1 so
// the zero handle is never valid.
type table[H ~uint64, V any] struct {
	next uint64
	m    map[H]V
}

func newTable[H ~uint64, V any]() *table[H, V] {
	return &table[H, V]{m: make(map[H]V)}
}

func (t *table[H, V]) put(v V) H {
	t.next++
	h := H(t.next)
	t.m[h] = v
	return h
}

func (t *table[H, V]) get(h H) V {
	return t.m[h]
}

func (t *table[H, V]) take(h H) (V, bool) {
	v, ok := t.m[h]
	if ok {
		delete(t.m, h)
	}
	return v, ok
}

func (t *table[H, V]) len() int {
	return len(t.m)
}
