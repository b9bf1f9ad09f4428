// Package harvestgrpc serves and dials the harvest.v1.Node gRPC
// service. Messages are the cramberry-tagged structs of package types
// and this package; there is no protobuf schema.
package harvestgrpc

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"google.golang.org/grpc/encoding"
)

// Codec is the gRPC codec of the node service. Servers pick it up by
// content subtype; clients force it with grpc.ForceCodec.
type Codec struct{}

var _ encoding.Codec = Codec{}

func init() { encoding.RegisterCodec(Codec{}) }

func (Codec) Name() string { return "cramberry" }

func (c Codec) Marshal(v any) ([]byte, error) {
	b, err := cramberry.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal %T: %w", c.Name(), v, err)
	}
	return b, nil
}

func (c Codec) Unmarshal(data []byte, v any) error {
	if err := cramberry.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: unmarshal %T: %w", c.Name(), v, err)
	}
	return nil
}
