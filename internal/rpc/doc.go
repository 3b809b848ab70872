// Package rpc exposes the peer service used between nodes: replica Apply
// and Get, and membership Join and Sync. Messages use the protobuf wire
// format through a registered gRPC codec, so no generated code is needed.
package rpc
