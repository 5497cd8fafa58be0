package futapi

import (
	"slices"

	http "github.com/bogdanfinn/fhttp"
)

// Headers is an insertion-ordered header set. The order is sent on the wire
// through http.HeaderOrderKey, the way a browser would send it.
type Headers struct {
	keys   []string
	values map[string]string
}

func NewHeaders() *Headers {
	return &Headers{values: make(map[string]string)}
}

// Set replaces the value of key, appending it to the order if new.
func (h *Headers) Set(key, value string) {
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

func (h *Headers) Get(key string) string {
	return h.values[key]
}

func (h *Headers) Has(key string) bool {
	_, ok := h.values[key]
	return ok
}

func (h *Headers) Del(key string) {
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	h.keys = slices.DeleteFunc(h.keys, func(k string) bool { return k == key })
}

func (h *Headers) Len() int {
	return len(h.keys)
}

func (h *Headers) Clone() *Headers {
	return &Headers{
		keys:   slices.Clone(h.keys),
		values: copyMap(h.values),
	}
}

// Map returns a copy of the values.
func (h *Headers) Map() map[string]string {
	return copyMap(h.values)
}

// Header renders the set as an fhttp header, keys kept exactly as given.
func (h *Headers) Header() http.Header {
	out := make(http.Header, len(h.keys)+2)
	for _, k := range h.keys {
		out[k] = []string{h.values[k]}
	}
	out[http.HeaderOrderKey] = slices.Clone(h.keys)
	out[http.PHeaderOrderKey] = PseudoHeaderOrder
	return out
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
