package server

import (
	"context"
	"sync"

	"mcpgateway/internal/api"
)

// fakeAggregator records calls and returns canned results.
type fakeAggregator struct {
	mu sync.Mutex

	servers  map[string]*api.ServerRecord
	tools    []*api.ToolRecord
	catalog  []*api.ToolRecord
	callResp *api.CallToolResponse
	health   *api.HealthReport
	err      error
	seen     seenRequests
}

// seenRequests is what the fake observed; read it through observed().
type seenRequests struct {
	lastCall   api.CallToolRequest
	lastSearch api.SearchRequest
	lastForce  bool
	lastStatus api.ServerStatus
	removed    []string
}

func (f *fakeAggregator) observed() seenRequests {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen
}

func newFakeAggregator() *fakeAggregator {
	return &fakeAggregator{
		servers: map[string]*api.ServerRecord{
			"srv-1": {ID: "srv-1", Name: "github", TransportType: api.TransportSSE, Status: api.StatusConnected},
		},
		health: &api.HealthReport{Status: api.HealthHealthy},
	}
}

func (f *fakeAggregator) lookup(ref string) (*api.ServerRecord, error) {
	for _, rec := range f.servers {
		if rec.ID == ref || rec.Name == ref {
			return rec, nil
		}
	}
	return nil, api.ErrServerNotFound(ref)
}

func (f *fakeAggregator) Register(ctx context.Context, req api.RegisterServerRequest) (*api.ServerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if _, err := f.lookup(req.Name); err == nil {
		return nil, api.ErrServerAlreadyExists(req.Name)
	}
	rec := &api.ServerRecord{ID: "srv-" + req.Name, Name: req.Name, TransportType: api.TransportType(req.TransportType), Status: api.StatusDisconnected}
	f.servers[rec.ID] = rec
	return rec, nil
}

func (f *fakeAggregator) GetServer(ref string) (*api.ServerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(ref)
}

func (f *fakeAggregator) ListServers(status api.ServerStatus) []*api.ServerRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen.lastStatus = status
	var out []*api.ServerRecord
	for _, rec := range f.servers {
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
	}
	return out
}

func (f *fakeAggregator) Connect(ctx context.Context, ref string) (*api.ServerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	rec, err := f.lookup(ref)
	if err != nil {
		return nil, err
	}
	rec.Status = api.StatusConnected
	return rec, nil
}

func (f *fakeAggregator) Disconnect(ctx context.Context, ref string, force bool) (*api.ServerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen.lastForce = force
	rec, err := f.lookup(ref)
	if err != nil {
		return nil, err
	}
	rec.Status = api.StatusDisconnected
	return rec, nil
}

func (f *fakeAggregator) Remove(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.lookup(ref)
	if err != nil {
		return err
	}
	delete(f.servers, rec.ID)
	f.seen.removed = append(f.seen.removed, rec.ID)
	return nil
}

func (f *fakeAggregator) ListServerTools(ref string) ([]*api.ToolRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(ref); err != nil {
		return nil, err
	}
	return f.tools, nil
}

func (f *fakeAggregator) RefreshTools(ctx context.Context, ref string) (*api.RefreshResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.lookup(ref)
	if err != nil {
		return nil, err
	}
	return &api.RefreshResult{ServerID: rec.ID, ToolCount: len(f.tools), Added: len(f.tools)}, nil
}

func (f *fakeAggregator) Call(ctx context.Context, req api.CallToolRequest) (*api.CallToolResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen.lastCall = req
	if f.err != nil {
		return nil, f.err
	}
	return f.callResp, nil
}

func (f *fakeAggregator) Search(req api.SearchRequest) []api.SearchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen.lastSearch = req
	out := []api.SearchResult{}
	for _, t := range f.tools {
		out = append(out, api.SearchResult{ToolRecord: t})
	}
	return out
}

func (f *fakeAggregator) Catalog() []*api.ToolRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*api.ToolRecord(nil), f.catalog...)
}

func (f *fakeAggregator) setCatalog(tools ...*api.ToolRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = tools
}

func (f *fakeAggregator) State() *api.AggregatorState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &api.AggregatorState{TotalServers: len(f.servers), TotalTools: len(f.tools)}
}

func (f *fakeAggregator) Health() *api.HealthReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}
