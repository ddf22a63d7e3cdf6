package server

import (
	"fmt"
	"time"

	"github.com/sinkdb/core/corelog"
	"github.com/sinkdb/core/resource"
	"github.com/sinkdb/core/rpc/common"
	"github.com/sinkdb/core/rpc/serializer"
	"github.com/sinkdb/core/rpc/transport"
	"github.com/sinkdb/core/syncer"
)

var Logger = corelog.Get("rpc")

// NewRPCServer creates a new RPC server exposing res over transport, using
// serializer to encode messages on the wire. syncRunners supplies the
// domain-specific synchronization routine for every resource name a client
// may ask to synchronize; a resource name absent from syncRunners fails a
// SynchronizeRequest rather than panicking.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//		res,
//		syncRunners,
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	res *resource.Resource,
	syncRunners map[string]func(*syncer.Synchronizer) error,
) rpcServer {
	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		resource:   res,
		adapter:    NewResourceServerAdapter(time.Duration(config.TimeoutSecond)*time.Second, syncRunners),
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	resource   *resource.Resource
	adapter    IRPCServerAdapter
}

func (s *rpcServer) registerTransportHandler() {
	expectedShard := common.ResourceShard(s.config.ResourceID)

	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		if shardId != expectedShard {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("request framed for a different resource: this server serves %q", s.config.ResourceID),
			}
			val, _ := s.serializer.Serialize(respMsg)
			return val
		}

		if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to deserialize request: %s", err),
			}
		} else {
			respMsg = *s.adapter.Handle(&msg, s.resource)
		}

		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to serialize response: %s", err),
			}
			val, _ = s.serializer.Serialize(respMsg)
		}
		return val
	})
}

func (s *rpcServer) init() error {
	common.InitLoggers(s.config)
	s.registerTransportHandler()
	Logger.Infof("resource %s setup completed successfully", s.config.ResourceID)
	return nil
}

// Serve starts the RPC server, wiring the transport handler to the resource
// adapter and blocking on the transport's listen loop.
func (s *rpcServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}
