// Package types holds the store contract and the value types passed between
// the storage drivers, the resolver, the HTTP API and the CLI.
package types
