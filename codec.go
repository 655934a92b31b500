package cluster

import (
	"encoding/json"

	gojson "github.com/goccy/go-json"
)

// Codec encodes point and cluster properties inside snapshots.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec is the standard-library JSON codec, the default for snapshots.
type JSONCodec struct{}

// Marshal encodes the value to JSON.
func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns "json".
func (JSONCodec) Name() string { return "json" }

// GoJSONCodec is a JSON codec backed by github.com/goccy/go-json.
// Its output decodes with JSONCodec too, snapshots record it under its own name.
type GoJSONCodec struct{}

// Marshal encodes the value to JSON.
func (GoJSONCodec) Marshal(v any) ([]byte, error) { return gojson.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (GoJSONCodec) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

// Name returns "go-json".
func (GoJSONCodec) Name() string { return "go-json" }

// CodecByName returns a built-in codec by the name stored in snapshot headers.
func CodecByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSONCodec{}, true
	case "go-json":
		return GoJSONCodec{}, true
	default:
		return nil, false
	}
}
