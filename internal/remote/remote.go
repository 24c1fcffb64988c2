// Package remote describes the request/response contract of a face-swap
// service, independent of the transport used to reach it.
package remote

import "context"

// FileHandle refers to a local file that a transport must ship to the
// remote side.
type FileHandle struct {
	Path string
}

// Param is a named file argument of a remote operation.
type Param struct {
	Name string
	File FileHandle
}

// Connection invokes a named remote operation. The returned value is
// untyped; its shape depends on the service and must be decoded by the caller.
type Connection interface {
	Predict(ctx context.Context, apiName string, params ...Param) (any, error)
}

// Releaser is implemented by connections whose replies refer to local
// files they created. Release removes those files once the caller has
// finished reading the reply.
type Releaser interface {
	Release(reply any) error
}

// File is shorthand for building a Param.
func File(name, path string) Param {
	return Param{Name: name, File: FileHandle{Path: path}}
}
