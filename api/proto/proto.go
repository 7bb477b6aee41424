// Package proto holds the protoc-generated messages and gRPC bindings for
// the key_value_store.KeyValueStore service described in kv.proto.
package proto

//go:generate protoc --go_out=. --go_opt=paths=source_relative --go-grpc_out=. --go-grpc_opt=paths=source_relative kv.proto

// ServiceName is the fully-qualified service name, also used as the
// grpc.health.v1 service key.
const ServiceName = "key_value_store.KeyValueStore"
