package tele

// Wire messages, proto3 encoding via github.com/golang/protobuf.
// Field numbers are stable, never reuse a removed number.
//
// message Telemetry {
//   int32 device_id = 1; int64 time = 2; int32 state = 3;
//   Error error = 4; Link link = 5; Session session = 6;
//   Totals totals = 7; string build_version = 8;
// }

import (
	proto "github.com/golang/protobuf/proto"
)

type Telemetry struct {
	DeviceId     int32              `protobuf:"varint,1,opt,name=device_id,json=deviceId,proto3" json:"device_id,omitempty"`
	Time         int64              `protobuf:"varint,2,opt,name=time,proto3" json:"time,omitempty"`
	State        int32              `protobuf:"varint,3,opt,name=state,proto3" json:"state,omitempty"`
	Error        *Telemetry_Error   `protobuf:"bytes,4,opt,name=error,proto3" json:"error,omitempty"`
	Link         *Telemetry_Link    `protobuf:"bytes,5,opt,name=link,proto3" json:"link,omitempty"`
	Session      *Telemetry_Session `protobuf:"bytes,6,opt,name=session,proto3" json:"session,omitempty"`
	Totals       *Totals            `protobuf:"bytes,7,opt,name=totals,proto3" json:"totals,omitempty"`
	BuildVersion string             `protobuf:"bytes,8,opt,name=build_version,json=buildVersion,proto3" json:"build_version,omitempty"`
}

func (m *Telemetry) Reset()         { *m = Telemetry{} }
func (m *Telemetry) String() string { return proto.CompactTextString(m) }
func (*Telemetry) ProtoMessage()    {}

type Telemetry_Error struct {
	Message string `protobuf:"bytes,1,opt,name=message,proto3" json:"message,omitempty"`
	Code    int32  `protobuf:"varint,2,opt,name=code,proto3" json:"code,omitempty"`
}

func (m *Telemetry_Error) Reset()         { *m = Telemetry_Error{} }
func (m *Telemetry_Error) String() string { return proto.CompactTextString(m) }
func (*Telemetry_Error) ProtoMessage()    {}

// Link event summary, Text is human readable form.
type Telemetry_Link struct {
	Kind       string `protobuf:"bytes,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Text       string `protobuf:"bytes,2,opt,name=text,proto3" json:"text,omitempty"`
	Registered bool   `protobuf:"varint,3,opt,name=registered,proto3" json:"registered,omitempty"`
}

func (m *Telemetry_Link) Reset()         { *m = Telemetry_Link{} }
func (m *Telemetry_Link) String() string { return proto.CompactTextString(m) }
func (*Telemetry_Link) ProtoMessage()    {}

type Telemetry_Session struct {
	Id      string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Address string `protobuf:"bytes,2,opt,name=address,proto3" json:"address,omitempty"`
	Sends   uint64 `protobuf:"varint,3,opt,name=sends,proto3" json:"sends,omitempty"`
	Bytes   uint64 `protobuf:"varint,4,opt,name=bytes,proto3" json:"bytes,omitempty"`
}

func (m *Telemetry_Session) Reset()         { *m = Telemetry_Session{} }
func (m *Telemetry_Session) String() string { return proto.CompactTextString(m) }
func (*Telemetry_Session) ProtoMessage()    {}

// Totals are lifetime counters, also persisted on device.
type Totals struct {
	Boots     uint64 `protobuf:"varint,1,opt,name=boots,proto3" json:"boots,omitempty"`
	Connects  uint64 `protobuf:"varint,2,opt,name=connects,proto3" json:"connects,omitempty"`
	Sends     uint64 `protobuf:"varint,3,opt,name=sends,proto3" json:"sends,omitempty"`
	SentBytes uint64 `protobuf:"varint,4,opt,name=sent_bytes,json=sentBytes,proto3" json:"sent_bytes,omitempty"`
	Failures  uint64 `protobuf:"varint,5,opt,name=failures,proto3" json:"failures,omitempty"`
}

func (m *Totals) Reset()         { *m = Totals{} }
func (m *Totals) String() string { return proto.CompactTextString(m) }
func (*Totals) ProtoMessage()    {}
