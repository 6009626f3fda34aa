package proto

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
	gproto "google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/encoding/protojson"
)

// CodecName is the content subtype clients must request
// (application/grpc+json).
const CodecName = "json"

// jsonCodec carries plain Go structs as JSON. Well-known protobuf types such
// as emptypb.Empty go through protojson so they keep their canonical form.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(gproto.Message); ok {
		return protojson.Marshal(m)
	}
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(gproto.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
