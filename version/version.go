// Package version holds the release of the binary, set at link time with
// -ldflags "-X github.com/gridexchange/edi-gateway/version.VERSION=...".
package version

var VERSION = "(devel)"
