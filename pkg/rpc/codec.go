package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// Codec is the content-subtype of the JSON wire codec.
const Codec = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return Codec }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
