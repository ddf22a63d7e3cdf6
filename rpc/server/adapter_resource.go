package server

import (
	"context"
	"fmt"
	"time"

	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/query"
	"github.com/sinkdb/core/resource"
	"github.com/sinkdb/core/rpc/common"
	"github.com/sinkdb/core/syncer"
)

// NewResourceServerAdapter creates an adapter that dispatches RPC requests
// against a resource.Resource. syncRunners supplies the domain-specific
// synchronization routine for each resource name a caller may ask to
// MsgTSynchronizeRequest - this module has no remote source of its own to
// synchronize against, so the routine must come from whoever embeds it.
func NewResourceServerAdapter(timeout time.Duration, syncRunners map[string]func(*syncer.Synchronizer) error) IRPCServerAdapter {
	return &resourceServerAdapterImpl{timeout: timeout, syncRunners: syncRunners}
}

type resourceServerAdapterImpl struct {
	timeout     time.Duration
	syncRunners map[string]func(*syncer.Synchronizer) error
}

func (a *resourceServerAdapterImpl) ctx() (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), a.timeout)
}

func (a *resourceServerAdapterImpl) Handle(req *common.Message, res *resource.Resource) *common.Message {
	if res == nil {
		return common.NewErrorResponse("handler: resource is nil")
	}

	ctx, cancel := a.ctx()
	defer cancel()

	switch req.MsgType {
	case common.MsgTCreate:
		return a.handleCreate(ctx, req, res)
	case common.MsgTModify:
		return a.handleModify(ctx, req, res)
	case common.MsgTDelete:
		return a.handleDelete(ctx, req, res)
	case common.MsgTFlush:
		_, err := res.FlushMessageQueue(ctx, req.Resources...).Wait(ctx)
		return common.NewFlushResponse(err)
	case common.MsgTQuery:
		return a.handleQuery(ctx, req, res)
	case common.MsgTRevisionReplayed:
		err := res.RevisionReplayed(req.ID, corekey.Revision(req.Revision))
		return common.NewRevisionReplayedResponse(err)
	case common.MsgTSynchronizeRequest:
		return a.handleSynchronize(ctx, req, res)
	case common.MsgTShutdown:
		err := res.Drain(ctx)
		if err == nil {
			err = res.Shutdown()
		}
		return common.NewShutdownResponse(err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC ResourceAdapter - unsupported message type: %s", req.MsgType),
		)
	}
}

func (a *resourceServerAdapterImpl) handleCreate(ctx context.Context, req *common.Message, res *resource.Resource) *common.Message {
	ad, err := res.Adaptor(req.EntType)
	if err != nil {
		return common.NewCreateResponse("", err)
	}
	payload, err := ad.Decode(req.Payload)
	if err != nil {
		return common.NewCreateResponse("", err)
	}
	id, err := res.Create(req.Resource, req.EntType, payload).Wait(ctx)
	if err != nil {
		return common.NewCreateResponse("", err)
	}
	return common.NewCreateResponse(id.String(), nil)
}

func (a *resourceServerAdapterImpl) handleModify(ctx context.Context, req *common.Message, res *resource.Resource) *common.Message {
	id, err := corekey.ParseIdentifier(req.ID)
	if err != nil {
		return common.NewModifyResponse(err)
	}
	ad, err := res.Adaptor(req.EntType)
	if err != nil {
		return common.NewModifyResponse(err)
	}
	payload, err := ad.Decode(req.Payload)
	if err != nil {
		return common.NewModifyResponse(err)
	}
	_, err = res.Modify(id, req.Resource, req.EntType, payload).Wait(ctx)
	return common.NewModifyResponse(err)
}

func (a *resourceServerAdapterImpl) handleDelete(ctx context.Context, req *common.Message, res *resource.Resource) *common.Message {
	id, err := corekey.ParseIdentifier(req.ID)
	if err != nil {
		return common.NewDeleteResponse(err)
	}
	_, err = res.Remove(id, req.Resource, req.EntType).Wait(ctx)
	return common.NewDeleteResponse(err)
}

func (a *resourceServerAdapterImpl) handleQuery(ctx context.Context, req *common.Message, res *resource.Resource) *common.Message {
	ad, err := res.Adaptor(req.EntType)
	if err != nil {
		return common.NewQueryResponse(nil, err)
	}

	q := &query.Query{Types: []string{req.EntType}}
	if req.Resource != "" {
		q.Resources = []string{req.Resource}
	}
	if req.Property != "" {
		q.PropertyFilter = map[string]query.Comparator{req.Property: query.Equal(req.Value)}
	}

	rp := &query.CollectingResultProvider{}
	if _, err := res.Load(ctx, q, rp).Wait(ctx); err != nil {
		return common.NewQueryResponse(nil, err)
	}

	results := make([]common.QueryResult, 0, len(rp.Matches))
	for _, entity := range rp.Matches {
		data, err := ad.Encode(entity.Payload)
		if err != nil {
			return common.NewQueryResponse(nil, err)
		}
		results = append(results, common.QueryResult{ID: entity.Key.ID.String(), Payload: data})
	}
	return common.NewQueryResponse(results, nil)
}

func (a *resourceServerAdapterImpl) handleSynchronize(ctx context.Context, req *common.Message, res *resource.Resource) *common.Message {
	run, ok := a.syncRunners[req.Resource]
	if !ok {
		return common.NewSynchronizeResponse(fmt.Errorf("no synchronize routine configured for resource %q", req.Resource))
	}
	_, err := res.Synchronize(req.Resource, run).Wait(ctx)
	return common.NewSynchronizeResponse(err)
}
