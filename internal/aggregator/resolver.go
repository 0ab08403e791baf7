package aggregator

import (
	"strings"

	"mcpgateway/internal/api"
)

// Resolver maps a requested tool name to the server that should run it.
// It performs no I/O.
type Resolver struct {
	registry *ServerRegistry
	tools    *ToolIndex
}

// NewResolver creates a resolver.
func NewResolver(registry *ServerRegistry, tools *ToolIndex) *Resolver {
	return &Resolver{registry: registry, tools: tools}
}

// Resolve applies, in order:
//  1. an explicit server (id or name) wins and the tool name is used as is;
//  2. a name containing a dot whose prefix is a registered server name is
//     split on the first dot;
//  3. otherwise the name is looked up among external tools by original
//     name, which must match exactly one server.
func (r *Resolver) Resolve(toolName, explicitServer string) (api.RoutingContext, error) {
	if strings.TrimSpace(toolName) == "" {
		return api.RoutingContext{}, api.ErrValidation("tool name is required")
	}

	if explicitServer != "" {
		rec, err := r.registry.Lookup(explicitServer)
		if err != nil {
			return api.RoutingContext{}, err
		}
		return api.RoutingContext{
			ResolvedServerID: rec.ID,
			ServerName:       rec.Name,
			OriginalToolName: toolName,
			Strategy:         api.StrategyExplicitServer,
		}, nil
	}

	if serverName, original, ok := SplitNamespaced(toolName); ok {
		if rec := r.registry.GetByName(serverName); rec != nil {
			return api.RoutingContext{
				ResolvedServerID: rec.ID,
				ServerName:       rec.Name,
				OriginalToolName: original,
				Strategy:         api.StrategyNamespaceResolved,
			}, nil
		}
	}

	matches := r.tools.LookupOriginal(toolName)
	if len(matches) == 0 {
		return api.RoutingContext{}, api.ErrToolNotFound(toolName)
	}

	owners := make([]*api.ServerRecord, 0, len(matches))
	originals := make([]string, 0, len(matches))
	for _, m := range matches {
		if rec := r.registry.Get(m.SourceServerID); rec != nil {
			owners = append(owners, rec)
			originals = append(originals, m.OriginalName)
		}
	}

	switch len(owners) {
	case 0:
		return api.RoutingContext{}, api.ErrRoutingFailed(toolName, "no registered server owns it")
	case 1:
		return api.RoutingContext{
			ResolvedServerID: owners[0].ID,
			ServerName:       owners[0].Name,
			OriginalToolName: originals[0],
			Strategy:         api.StrategyLookupResolved,
		}, nil
	default:
		candidates := make([]string, 0, len(owners))
		for _, rec := range owners {
			candidates = append(candidates, rec.ID)
		}
		return api.RoutingContext{}, api.ErrToolAmbiguous(toolName, candidates)
	}
}
