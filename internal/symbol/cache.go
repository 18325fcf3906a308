// Package symbol resolves the "next" definition of a dynamically linked
// symbol and hands it out as a typed, cached capability.
//
// Lookups go through a Resolver (dlsym(RTLD_NEXT, ...) in production) and are
// memoized per name in a Cache. Concurrent first callers for the same name
// share a single lookup, so a cold cache is filled by exactly one writer.
package symbol

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/goradd/maps"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is wrapped by every ResolveError.
var ErrNotFound = errors.New("symbol not found")

// ResolveError reports a failed lookup of Name.
type ResolveError struct {
	Name   string
	Reason string
}

func (e *ResolveError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("resolve %q: %v", e.Name, ErrNotFound)
	}
	return fmt.Sprintf("resolve %q: %v: %s", e.Name, ErrNotFound, e.Reason)
}

func (e *ResolveError) Unwrap() error {
	return ErrNotFound
}

// Resolver finds the address of the definition of name that the dynamic
// linker would pick after the calling module.
type Resolver interface {
	Resolve(name string) (unsafe.Pointer, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(name string) (unsafe.Pointer, error)

// Resolve calls f(name).
func (f ResolverFunc) Resolve(name string) (unsafe.Pointer, error) {
	return f(name)
}

// Cache memoizes successful lookups. Failures are not cached, so a later
// call may retry.
type Cache struct {
	resolver Resolver
	group    singleflight.Group
	addrs    maps.SafeMap[string, unsafe.Pointer]
}

// NewCache wraps resolver with a resolve-once cache.
func NewCache(resolver Resolver) *Cache {
	return &Cache{resolver: resolver}
}

// Resolve returns the cached address for name, looking it up on first use.
func (c *Cache) Resolve(name string) (unsafe.Pointer, error) {
	if addr, ok := c.addrs.Load(name); ok {
		return addr, nil
	}

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		// A caller that lost the race may arrive after the winner stored.
		if addr, ok := c.addrs.Load(name); ok {
			return addr, nil
		}
		addr, err := c.resolver.Resolve(name)
		if err != nil {
			return nil, err
		}
		if addr == nil {
			return nil, &ResolveError{Name: name, Reason: "resolver returned nil"}
		}
		c.addrs.Set(name, addr)
		return addr, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(unsafe.Pointer), nil
}

func (c *Cache) cached(name string) bool {
	return c.addrs.Has(name)
}
