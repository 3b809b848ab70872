package rpc

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"ringkv/internal/clock"
	"ringkv/internal/membership"
	"ringkv/internal/record"
)

// Record is the wire form of record.Record.
type Record struct {
	Key       string
	Value     []byte
	Time      int64
	Origin    string
	Tombstone bool
}

func (r *Record) marshal() []byte {
	var b []byte
	b = appendString(b, 1, r.Key)
	b = appendBytes(b, 2, r.Value)
	b = appendVarint(b, 3, uint64(r.Time))
	b = appendString(b, 4, r.Origin)
	b = appendBool(b, 5, r.Tombstone)
	return b
}

func (r *Record) unmarshal(b []byte) error {
	*r = Record{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(num, typ, b, &r.Key)
		case 2:
			return consumeBytes(num, typ, b, &r.Value)
		case 3:
			var v uint64
			n := consumeVarint(num, typ, b, &v)
			r.Time = int64(v)
			return n
		case 4:
			return consumeString(num, typ, b, &r.Origin)
		case 5:
			return consumeBool(num, typ, b, &r.Tombstone)
		default:
			return skip(num, typ, b)
		}
	})
}

func recordToWire(rec record.Record) *Record {
	return &Record{
		Key:       rec.Key,
		Value:     rec.Value,
		Time:      rec.Timestamp.Time,
		Origin:    rec.Timestamp.Origin,
		Tombstone: rec.Tombstone,
	}
}

func recordFromWire(r *Record) record.Record {
	if r == nil {
		return record.Record{}
	}
	return record.Record{
		Key:       r.Key,
		Value:     r.Value,
		Timestamp: clock.Timestamp{Time: r.Time, Origin: r.Origin},
		Tombstone: r.Tombstone,
	}
}

// Member is the wire form of membership.Member.
type Member struct {
	ID             string
	Addr           string
	Status         uint64
	LastSeenUnixMs uint64
}

func (m *Member) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.Addr)
	b = appendVarint(b, 3, m.Status)
	b = appendVarint(b, 4, m.LastSeenUnixMs)
	return b
}

func (m *Member) unmarshal(b []byte) error {
	*m = Member{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(num, typ, b, &m.ID)
		case 2:
			return consumeString(num, typ, b, &m.Addr)
		case 3:
			return consumeVarint(num, typ, b, &m.Status)
		case 4:
			return consumeVarint(num, typ, b, &m.LastSeenUnixMs)
		default:
			return skip(num, typ, b)
		}
	})
}

func memberToWire(m membership.Member) *Member {
	var lastSeen uint64
	if !m.LastSeen.IsZero() {
		lastSeen = uint64(m.LastSeen.UnixMilli())
	}
	return &Member{ID: m.ID, Addr: m.Addr, Status: uint64(m.Status), LastSeenUnixMs: lastSeen}
}

func memberFromWire(m *Member) membership.Member {
	out := membership.Member{ID: m.ID, Addr: m.Addr, Status: membership.Status(m.Status)}
	if m.LastSeenUnixMs > 0 {
		out.LastSeen = time.UnixMilli(int64(m.LastSeenUnixMs))
	}
	return out
}

func membersToWire(members []membership.Member) []*Member {
	out := make([]*Member, 0, len(members))
	for _, m := range members {
		out = append(out, memberToWire(m))
	}
	return out
}

func membersFromWire(members []*Member) []membership.Member {
	out := make([]membership.Member, 0, len(members))
	for _, m := range members {
		out = append(out, memberFromWire(m))
	}
	return out
}

func appendMembers(b []byte, num protowire.Number, members []*Member) []byte {
	for _, m := range members {
		b = appendMessage(b, num, m)
	}
	return b
}

func consumeMember(num protowire.Number, typ protowire.Type, b []byte, dst *[]*Member) int {
	m := new(Member)
	n := consumeMessage(num, typ, b, m)
	if n >= 0 && typ == protowire.BytesType {
		*dst = append(*dst, m)
	}
	return n
}

// ApplyRequest carries a replica write.
type ApplyRequest struct {
	Record      *Record
	RequestID   string
	Coordinator string
}

func (r *ApplyRequest) marshal() []byte {
	var b []byte
	if r.Record != nil {
		b = appendMessage(b, 1, r.Record)
	}
	b = appendString(b, 2, r.RequestID)
	b = appendString(b, 3, r.Coordinator)
	return b
}

func (r *ApplyRequest) unmarshal(b []byte) error {
	*r = ApplyRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			r.Record = new(Record)
			return consumeMessage(num, typ, b, r.Record)
		case 2:
			return consumeString(num, typ, b, &r.RequestID)
		case 3:
			return consumeString(num, typ, b, &r.Coordinator)
		default:
			return skip(num, typ, b)
		}
	})
}

// ApplyResponse reports the version the replica kept.
type ApplyResponse struct {
	Stored *Record
}

func (r *ApplyResponse) marshal() []byte {
	if r.Stored == nil {
		return nil
	}
	return appendMessage(nil, 1, r.Stored)
}

func (r *ApplyResponse) unmarshal(b []byte) error {
	*r = ApplyResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			r.Stored = new(Record)
			return consumeMessage(num, typ, b, r.Stored)
		}
		return skip(num, typ, b)
	})
}

// GetRequest asks a replica for its version of a key.
type GetRequest struct {
	Key         string
	RequestID   string
	Coordinator string
}

func (r *GetRequest) marshal() []byte {
	var b []byte
	b = appendString(b, 1, r.Key)
	b = appendString(b, 2, r.RequestID)
	b = appendString(b, 3, r.Coordinator)
	return b
}

func (r *GetRequest) unmarshal(b []byte) error {
	*r = GetRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(num, typ, b, &r.Key)
		case 2:
			return consumeString(num, typ, b, &r.RequestID)
		case 3:
			return consumeString(num, typ, b, &r.Coordinator)
		default:
			return skip(num, typ, b)
		}
	})
}

// GetResponse carries the replica's version, if any.
type GetResponse struct {
	Found  bool
	Record *Record
}

func (r *GetResponse) marshal() []byte {
	var b []byte
	b = appendBool(b, 1, r.Found)
	if r.Record != nil {
		b = appendMessage(b, 2, r.Record)
	}
	return b
}

func (r *GetResponse) unmarshal(b []byte) error {
	*r = GetResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBool(num, typ, b, &r.Found)
		case 2:
			r.Record = new(Record)
			return consumeMessage(num, typ, b, r.Record)
		default:
			return skip(num, typ, b)
		}
	})
}

// JoinRequest asks a contact to admit Member.
type JoinRequest struct {
	Member *Member
}

func (r *JoinRequest) marshal() []byte {
	if r.Member == nil {
		return nil
	}
	return appendMessage(nil, 1, r.Member)
}

func (r *JoinRequest) unmarshal(b []byte) error {
	*r = JoinRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			r.Member = new(Member)
			return consumeMessage(num, typ, b, r.Member)
		}
		return skip(num, typ, b)
	})
}

// MembersResponse carries the responder's member list.
type MembersResponse struct {
	Members []*Member
}

func (r *MembersResponse) marshal() []byte {
	return appendMembers(nil, 1, r.Members)
}

func (r *MembersResponse) unmarshal(b []byte) error {
	*r = MembersResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeMember(num, typ, b, &r.Members)
		}
		return skip(num, typ, b)
	})
}

// SyncRequest pushes a member list from a peer.
type SyncRequest struct {
	From    string
	Members []*Member
}

func (r *SyncRequest) marshal() []byte {
	b := appendString(nil, 1, r.From)
	return appendMembers(b, 2, r.Members)
}

func (r *SyncRequest) unmarshal(b []byte) error {
	*r = SyncRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(num, typ, b, &r.From)
		case 2:
			return consumeMember(num, typ, b, &r.Members)
		default:
			return skip(num, typ, b)
		}
	})
}
