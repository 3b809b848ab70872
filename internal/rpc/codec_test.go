package rpc

import (
	"reflect"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodec_ApplyRequest(t *testing.T) {
	in := &ApplyRequest{
		Record: &Record{
			Key:       "user1",
			Value:     []byte("Alice"),
			Time:      1700000000000000000,
			Origin:    "node1",
			Tombstone: false,
		},
		RequestID:   "req-1",
		Coordinator: "node1",
	}

	data, err := wireCodec{}.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := new(ApplyRequest)
	if err := (wireCodec{}).Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestCodec_RepeatedMembers(t *testing.T) {
	in := &SyncRequest{
		From: "A",
		Members: []*Member{
			{ID: "A", Addr: "a:1", Status: 0, LastSeenUnixMs: 10},
			{ID: "B", Addr: "b:1", Status: 2},
		},
	}

	out := new(SyncRequest)
	if err := out.unmarshal(in.marshal()); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestCodec_SkipsUnknownFields(t *testing.T) {
	b := (&GetRequest{Key: "k"}).marshal()
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)
	b = protowire.AppendTag(b, 100, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	out := new(GetRequest)
	if err := out.unmarshal(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Key != "k" {
		t.Errorf("Expected key k, got %q", out.Key)
	}
}

func TestCodec_Truncated(t *testing.T) {
	b := (&GetRequest{Key: "some-key"}).marshal()
	if err := new(GetRequest).unmarshal(b[:len(b)-2]); err == nil {
		t.Error("Expected error for truncated message")
	}
}

func TestCodec_RejectsForeignTypes(t *testing.T) {
	if _, err := (wireCodec{}).Marshal("not a message"); err == nil {
		t.Error("Expected marshal error")
	}
	if err := (wireCodec{}).Unmarshal(nil, new(int)); err == nil {
		t.Error("Expected unmarshal error")
	}
}
