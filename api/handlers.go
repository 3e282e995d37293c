package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/econoflow/econoflow/internal/country"
	"github.com/econoflow/econoflow/internal/params"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/internal/resolve"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	if s.registry != nil {
		data["providers"] = len(s.registry.Names())
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.registry.List(),
	})
}

// decodeIntent reads a parsed-intent body. A query with no explicit
// indicator list is treated as one indicator term; the resolver sorts
// out what it names.
func decodeIntent(r *http.Request) (*params.ParsedIntent, bool) {
	var in params.ParsedIntent
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return nil, false
	}
	in.OriginalQuery = strings.TrimSpace(in.OriginalQuery)
	if len(in.Indicators) == 0 && in.OriginalQuery != "" {
		in.Indicators = []string{in.OriginalQuery}
	}
	return &in, true
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeIntent(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
	defer cancel()

	res, err := s.orch.FetchIntent(ctx, in)
	if err != nil {
		writeProviderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: res})
}

// ResolveRequest is the body for POST /api/v1/resolve.
type ResolveRequest struct {
	Query     string   `json:"query"`
	Provider  string   `json:"provider,omitempty"`
	Countries []string `json:"countries,omitempty"`
}

// ResolveResponse pairs the winning code with nearby index entries the
// caller can offer as alternatives.
type ResolveResponse struct {
	Resolved     *resolve.ResolvedIndicator `json:"resolved"`
	Alternatives []AlternativeCode          `json:"alternatives,omitempty"`
}

// AlternativeCode is one indicator the resolver almost picked.
type AlternativeCode struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	var target provider.Name
	if req.Provider != "" {
		p, ok := provider.ParseName(req.Provider)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown provider: "+req.Provider)
			return
		}
		target = p
	}

	res := s.resolver.Resolve(req.Query, target, req.Countries)
	if res == nil {
		writeError(w, http.StatusNotFound, "no indicator code matched "+strconv.Quote(req.Query))
		return
	}

	resp := ResolveResponse{Resolved: res}
	for _, alt := range s.resolver.Alternatives(res.Provider, res.Code, 3) {
		resp.Alternatives = append(resp.Alternatives, AlternativeCode{
			Code: alt.Code,
			Name: alt.Name,
			Unit: alt.Unit,
		})
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeIntent(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := params.Validate(in); err != nil {
		writeProviderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.router.Route(in),
	})
}

// RegionResponse is the expansion of one region or group label.
type RegionResponse struct {
	Label   string   `json:"label"`
	Format  string   `json:"format"`
	Members []string `json:"members"`
	Count   int      `json:"count"`
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")

	format, ok := regionFormat(r.URL.Query().Get("format"))
	if !ok {
		writeError(w, http.StatusBadRequest, "format must be iso2, iso3, or un_numeric")
		return
	}

	members, ok := country.ExpandRegion(label, format)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown region or group: "+strconv.Quote(label))
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: RegionResponse{
			Label:   label,
			Format:  string(format),
			Members: members,
			Count:   len(members),
		},
	})
}

func regionFormat(s string) (country.Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "iso2":
		return country.ISO2, true
	case "iso3":
		return country.ISO3, true
	case "un", "un_numeric", "m49":
		return country.UNNumeric, true
	}
	return "", false
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) {
	if s.releases == nil {
		writeError(w, http.StatusServiceUnavailable, "release feeds not configured")
		return
	}

	var names []provider.Name
	for _, raw := range r.URL.Query()["provider"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			p, ok := provider.ParseName(part)
			if !ok {
				writeError(w, http.StatusBadRequest, "unknown provider: "+part)
				return
			}
			names = append(names, p)
		}
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	items, err := s.releases.Fetch(ctx, names, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: items})
}

func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, "catalog reload failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"concepts":    len(s.catalog.Current().Concepts()),
			"reloaded_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	if s.gate == nil {
		writeError(w, http.StatusServiceUnavailable, "rate gate not configured")
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.gate.States(),
	})
}
