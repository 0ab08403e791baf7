package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mcpgateway/internal/api"
	gwstrings "mcpgateway/pkg/strings"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterServerRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.agg.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	var status api.ServerStatus
	if q := r.URL.Query().Get("status"); q != "" {
		st, ok := api.ParseServerStatus(q)
		if !ok {
			writeError(w, api.ErrValidation("unknown status %q", q))
			return
		}
		status = st
	}
	servers := s.agg.ListServers(status)
	writeJSON(w, http.StatusOK, api.ServerList{Servers: servers, Total: len(servers)})
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	rec, err := s.agg.GetServer(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRemoveServer(w http.ResponseWriter, r *http.Request) {
	if err := s.agg.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	rec, err := s.agg.Connect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req api.DisconnectRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.agg.Disconnect(r.Context(), chi.URLParam(r, "id"), req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleServerTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.agg.ListServerTools(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ToolList{Tools: tools, Total: len(tools)})
}

func (s *Server) handleRefreshTools(w http.ResponseWriter, r *http.Request) {
	res, err := s.agg.RefreshTools(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.State())
}

// handleHealth answers 503 only when the gateway is unhealthy so load
// balancers keep routing to a degraded gateway.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.agg.Health()
	status := http.StatusOK
	if report.Status == api.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var req api.CallToolRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, api.ErrValidation("name is required"))
		return
	}
	resp, err := s.agg.Call(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := api.SearchRequest{
		Query:           q.Get("q"),
		IncludeExternal: true,
		ServerFilter:    gwstrings.SplitList(q.Get("server_filter")),
	}

	var err error
	if req.IncludeExternal, err = boolParam(q.Get("include_external"), true); err != nil {
		writeError(w, api.ErrValidation("include_external: %v", err))
		return
	}
	if req.IncludeUnavailable, err = boolParam(q.Get("include_unavailable"), false); err != nil {
		writeError(w, api.ErrValidation("include_unavailable: %v", err))
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, api.ErrValidation("limit must be a non-negative integer"))
			return
		}
		req.Limit = limit
	}

	results := s.agg.Search(req)
	writeJSON(w, http.StatusOK, api.SearchResponse{Results: results, Total: len(results)})
}

func boolParam(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}
