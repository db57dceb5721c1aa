// Package integration runs the edi-gateway binary against localstack.
//
// The binary must be installed in the PATH (`go install .`) and localstack must
// be listening on localhost:4566. Use `go test -short` to skip them.
//
// `go test` flags supported:
//
//   -debug
//
//    Enable debug mode.
//
// Example: go test -v ./integration/... -debug
//
package integration
