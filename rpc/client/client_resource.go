package client

import (
	"github.com/sinkdb/core/adaptor"
	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/rpc/common"
	"github.com/sinkdb/core/rpc/serializer"
	"github.com/sinkdb/core/rpc/transport"
)

// NewResourceClient connects to a resource process and returns a client for
// its Create/Modify/Remove/Query/Flush/RevisionReplayed/Synchronize/Shutdown RPC
// surface. registry supplies the Encode/Decode an entity type needs to turn
// a typed payload into wire bytes; it must match the registry the resource
// process itself was opened with.
func NewResourceClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
	registry *adaptor.Registry,
) (*ResourceClient, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}
	return &ResourceClient{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    common.ResourceShard(config.ResourceID),
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		registry: registry,
	}, nil
}

type ResourceClient struct {
	rpcClientAdapter
	registry *adaptor.Registry
}

// Create issues a Create request for a new entity of typeName, owned by
// resourceName, and returns its freshly assigned identifier.
func (c *ResourceClient) Create(resourceName, typeName string, payload interface{}) (corekey.Identifier, error) {
	ad, err := c.registry.Get(typeName)
	if err != nil {
		return corekey.Identifier{}, err
	}
	data, err := ad.Encode(payload)
	if err != nil {
		return corekey.Identifier{}, err
	}

	req := common.NewCreateRequest(resourceName, typeName, data)
	resp, err := invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	if err != nil {
		return corekey.Identifier{}, err
	}
	return corekey.ParseIdentifier(resp.ID)
}

// Modify issues a Modify request against an existing entity.
func (c *ResourceClient) Modify(id corekey.Identifier, resourceName, typeName string, payload interface{}) error {
	ad, err := c.registry.Get(typeName)
	if err != nil {
		return err
	}
	data, err := ad.Encode(payload)
	if err != nil {
		return err
	}

	req := common.NewModifyRequest(id.String(), resourceName, typeName, data)
	_, err = invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	return err
}

// Remove issues a Remove request against an existing entity.
func (c *ResourceClient) Remove(id corekey.Identifier, resourceName, typeName string) error {
	req := common.NewDeleteRequest(id.String(), resourceName, typeName)
	_, err := invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	return err
}

// Query runs a one-shot scan of typeName entities, optionally restricted to
// resourceName and/or to entities whose property equals value (an empty
// property matches every entity of typeName), returning each match's
// identifier alongside its decoded payload.
func (c *ResourceClient) Query(resourceName, typeName, property, value string) ([]QueryMatch, error) {
	ad, err := c.registry.Get(typeName)
	if err != nil {
		return nil, err
	}

	req := common.NewQueryRequest(resourceName, typeName, property, value)
	resp, err := invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}

	matches := make([]QueryMatch, 0, len(resp.Results))
	for _, r := range resp.Results {
		payload, err := ad.Decode(r.Payload)
		if err != nil {
			return nil, err
		}
		matches = append(matches, QueryMatch{ID: r.ID, Payload: payload})
	}
	return matches, nil
}

// QueryMatch is one entity Query found, with its payload already decoded by
// the entity type's adaptor.
type QueryMatch struct {
	ID      string
	Payload interface{}
}

// Flush blocks until the resource process has delivered every revision
// committed before this call to every live query it has open, for the
// resourceNames given.
func (c *ResourceClient) Flush(resourceNames ...string) error {
	req := common.NewFlushRequest(resourceNames...)
	_, err := invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	return err
}

// RevisionReplayed acknowledges that consumerName has processed every
// entity up to revision, letting the resource process advance that
// consumer's replay cursor.
func (c *ResourceClient) RevisionReplayed(consumerName string, revision uint64) error {
	req := common.NewRevisionReplayedRequest(revision)
	req.ID = consumerName
	_, err := invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	return err
}

// Synchronize triggers a synchronization run against resourceName's remote
// source, coalescing with any run already in flight on the resource
// process.
func (c *ResourceClient) Synchronize(resourceName string) error {
	req := common.NewSynchronizeRequest(resourceName)
	_, err := invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	return err
}

// Shutdown asks the resource process to drain in-flight calls and shut its
// storage environment down.
func (c *ResourceClient) Shutdown() error {
	req := common.NewShutdownRequest()
	_, err := invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	return err
}
