// Package producttypes registers the product type handlers with the core
// registry. Import this package to ensure all types are registered.
package producttypes

// This file exists to provide a single import point.
// Each type file uses init() to register its type.
