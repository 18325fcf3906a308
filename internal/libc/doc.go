// Package libc binds the symbol and intercept packages to the platform C
// library: it looks up the next definition of a symbol with
// dlsym(RTLD_NEXT, ...) and turns the raw addresses into typed Go functions.
//
// Only linux builds with cgo enabled provide an implementation.
package libc
