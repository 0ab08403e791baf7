package aggregator

import (
	"sort"
	"strings"

	"mcpgateway/internal/api"
)

// DefaultSearchLimit caps search results when the request sets no limit.
const DefaultSearchLimit = 50

// Search filters the catalog by a case-insensitive query over names and
// descriptions. External tools are included only when requested, only for
// servers in ServerFilter (by id or name) when it is set, and only while
// their server is CONNECTED or DEGRADED unless IncludeUnavailable is set.
// Every external result carries its source server.
//
// Results are ranked by where the query matched: exact name, name prefix,
// name substring, then description.
func Search(registry *ServerRegistry, tools *ToolIndex, req api.SearchRequest) []api.SearchResult {
	query := strings.ToLower(strings.TrimSpace(req.Query))
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var allowed map[string]bool
	if len(req.ServerFilter) > 0 {
		allowed = make(map[string]bool, len(req.ServerFilter))
		for _, ref := range req.ServerFilter {
			if rec, err := registry.Lookup(ref); err == nil {
				allowed[rec.ID] = true
			}
		}
	}

	type scored struct {
		result api.SearchResult
		score  int
	}
	var matches []scored
	servers := make(map[string]*api.ServerRecord)

	for _, t := range tools.List() {
		var source *api.SourceServer
		if t.IsExternal {
			if !req.IncludeExternal {
				continue
			}
			if allowed != nil && !allowed[t.SourceServerID] {
				continue
			}
			rec, ok := servers[t.SourceServerID]
			if !ok {
				rec = registry.Get(t.SourceServerID)
				servers[t.SourceServerID] = rec
			}
			if rec == nil {
				continue
			}
			if !rec.Status.Available() && !req.IncludeUnavailable {
				continue
			}
			source = &api.SourceServer{ID: rec.ID, Name: rec.Name, Status: rec.Status}
		} else if allowed != nil {
			// a server filter excludes local tools
			continue
		}

		score := matchScore(t, query)
		if score == 0 {
			continue
		}
		matches = append(matches, scored{result: api.SearchResult{ToolRecord: t, SourceServer: source}, score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]api.SearchResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.result)
	}
	return out
}

func matchScore(t *api.ToolRecord, query string) int {
	if query == "" {
		return 1
	}
	original := strings.ToLower(t.OriginalName)
	name := strings.ToLower(t.NamespacedName)
	switch {
	case original == query || name == query:
		return 4
	case strings.HasPrefix(original, query) || strings.HasPrefix(name, query):
		return 3
	case strings.Contains(name, query):
		return 2
	case strings.Contains(strings.ToLower(t.Description), query):
		return 1
	}
	return 0
}
