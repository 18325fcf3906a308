package symbol

import (
	"sync/atomic"
	"unsafe"
)

// Next is the typed "next implementation" of one symbol. The raw address
// from the Cache is converted to F by bind exactly where the handle is
// created, so callers never cast addresses themselves.
type Next[F any] struct {
	name  string
	cache *Cache
	bind  func(unsafe.Pointer) F
	fn    atomic.Pointer[F]
}

// NewNext creates a lazily resolved handle for name.
func NewNext[F any](cache *Cache, name string, bind func(unsafe.Pointer) F) *Next[F] {
	return &Next[F]{
		name:  name,
		cache: cache,
		bind:  bind,
	}
}

// Name returns the symbol name.
func (n *Next[F]) Name() string {
	return n.name
}

// Get returns the bound implementation, resolving it on first use.
func (n *Next[F]) Get() (F, error) {
	if fn := n.fn.Load(); fn != nil {
		return *fn, nil
	}

	addr, err := n.cache.Resolve(n.name)
	if err != nil {
		var zero F
		return zero, err
	}

	fn := n.bind(addr)
	// Racing binders produce equivalent values; the first one wins.
	n.fn.CompareAndSwap(nil, &fn)
	return *n.fn.Load(), nil
}
