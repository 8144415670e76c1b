package gamev1

import (
	"github.com/goccy/go-json"
)

// CodecName is the name the JSON codec registers under. It replaces connect's
// default protobuf JSON codec.
const CodecName = "json"

// Codec marshals plain Go messages as JSON.
type Codec struct{}

// Name returns the codec name.
func (Codec) Name() string {
	return CodecName
}

// Marshal encodes message as JSON.
func (Codec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

// Unmarshal decodes JSON into message.
func (Codec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, message)
}
