/*
handlers.go - HTTP API handlers for the fact ledger

PURPOSE:
  Exposes the fact store via a read-only REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the store.

ENDPOINTS:
  Nodes:
    GET /api/nodes/{id}                    Node by id
    GET /api/nodes/{id}/attributes         Attribute facts of a node
    GET /api/nodes/{id}/relationships      Relationship facts of a node

  Entities:
    GET /api/entities/{id}/resolve         Current id after merges
    GET /api/entities/{id}/lineage         Identity change history

  Decisions:
    GET /api/decisions                     All reconciliation decisions
    GET /api/decisions/{id}                One decision

  Stats:
    GET /api/stats                         Store statistics

QUERY PARAMETERS:
  ?predicate=amount   Filter statements by predicate
  ?active=true        Only statements not superseded or expired

CACHING:
  The served snapshot is immutable between batch runs, so hot reads are
  cached with a short TTL: stats and decision listings (whole-store scans
  dashboards poll aggressively), plus node and resolution lookups keyed
  by id. Statement and lineage listings go straight to the store.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 404: Unknown node, entity, or decision
  - 500: Internal errors

SEE ALSO:
  - server.go: Router setup and middleware
  - fact/store.go: The store these handlers read
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"

	"github.com/veridian/fact-engine/fact"
)

const (
	cacheTTL     = 5 * time.Second
	cacheCleanup = time.Minute

	statsCacheKey     = "stats"
	decisionsCacheKey = "decisions"

	nodeCachePrefix    = "node:"
	resolveCachePrefix = "resolve:"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *fact.Store

	// Short-TTL cache for whole-store scans
	cache *cache.Cache
}

// NewHandler creates a new handler reading from the given store.
func NewHandler(store *fact.Store) *Handler {
	return &Handler{
		Store: store,
		cache: cache.New(cacheTTL, cacheCleanup),
	}
}

// =============================================================================
// NODE HANDLERS
// =============================================================================

// GetNode returns a single node by id.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	id := fact.NodeID(chi.URLParam(r, "id"))

	if cached, ok := h.cache.Get(nodeCachePrefix + string(id)); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}
	node, ok := h.Store.Node(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Node not found", nil)
		return
	}
	h.cache.Set(nodeCachePrefix+string(id), node, cache.DefaultExpiration)
	writeJSON(w, http.StatusOK, node)
}

// GetAttributes returns the attribute facts of a node, optionally filtered
// by predicate and activity.
func (h *Handler) GetAttributes(w http.ResponseWriter, r *http.Request) {
	id := fact.NodeID(chi.URLParam(r, "id"))
	predicate := r.URL.Query().Get("predicate")
	activeOnly := r.URL.Query().Get("active") == "true"

	facts := h.Store.Attributes(id, predicate)
	if activeOnly {
		kept := facts[:0:0]
		for _, f := range facts {
			if f.Active() {
				kept = append(kept, f)
			}
		}
		facts = kept
	}
	if facts == nil {
		facts = []*fact.AttributeFact{}
	}
	writeJSON(w, http.StatusOK, facts)
}

// GetRelationships returns the relationship facts of a node.
func (h *Handler) GetRelationships(w http.ResponseWriter, r *http.Request) {
	id := fact.NodeID(chi.URLParam(r, "id"))
	predicate := r.URL.Query().Get("predicate")
	activeOnly := r.URL.Query().Get("active") == "true"

	facts := h.Store.Relationships(id, predicate)
	if activeOnly {
		kept := facts[:0:0]
		for _, f := range facts {
			if f.Active() {
				kept = append(kept, f)
			}
		}
		facts = kept
	}
	if facts == nil {
		facts = []*fact.RelationshipFact{}
	}
	writeJSON(w, http.StatusOK, facts)
}

// =============================================================================
// ENTITY HANDLERS
// =============================================================================

// ResolveEntityResponse reports where an entity id leads today.
type ResolveEntityResponse struct {
	EntityID        fact.NodeID `json:"entity_id"`
	CurrentEntityID fact.NodeID `json:"current_entity_id"`
	Merged          bool        `json:"merged"`
}

// ResolveEntity follows the lineage chain to the current id.
func (h *Handler) ResolveEntity(w http.ResponseWriter, r *http.Request) {
	id := fact.NodeID(chi.URLParam(r, "id"))

	if cached, ok := h.cache.Get(resolveCachePrefix + string(id)); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}
	current := h.Store.Lineage().ResolveCurrentEntityID(id)
	if current == id {
		if _, ok := h.Store.Node(id); !ok && len(h.Store.Lineage().History(id)) == 0 {
			writeError(w, http.StatusNotFound, "Entity not found", nil)
			return
		}
	}
	resp := ResolveEntityResponse{
		EntityID:        id,
		CurrentEntityID: current,
		Merged:          current != id,
	}
	h.cache.Set(resolveCachePrefix+string(id), resp, cache.DefaultExpiration)
	writeJSON(w, http.StatusOK, resp)
}

// LineageResponse is the identity history of one entity.
type LineageResponse struct {
	EntityID fact.NodeID           `json:"entity_id"`
	Count    int                   `json:"count"`
	History  []*fact.EntityLineage `json:"history"`
}

// GetLineage returns every lineage record touching an entity.
func (h *Handler) GetLineage(w http.ResponseWriter, r *http.Request) {
	id := fact.NodeID(chi.URLParam(r, "id"))

	history := h.Store.Lineage().History(id)
	if history == nil {
		history = []*fact.EntityLineage{}
	}
	writeJSON(w, http.StatusOK, LineageResponse{
		EntityID: id,
		Count:    len(history),
		History:  history,
	})
}

// =============================================================================
// DECISION HANDLERS
// =============================================================================

// ListDecisions returns every reconciliation decision.
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.Get(decisionsCacheKey); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}
	decisions := h.Store.Decisions()
	if decisions == nil {
		decisions = []*fact.ReconciliationDecision{}
	}
	h.cache.Set(decisionsCacheKey, decisions, cache.DefaultExpiration)
	writeJSON(w, http.StatusOK, decisions)
}

// GetDecision returns one reconciliation decision by id.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	id := fact.DecisionID(chi.URLParam(r, "id"))

	decision, ok := h.Store.Decision(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Decision not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// =============================================================================
// STATS
// =============================================================================

// GetStats returns store-wide counts.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.Get(statsCacheKey); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}
	stats := h.Store.Stats()
	h.cache.Set(statsCacheKey, stats, cache.DefaultExpiration)
	writeJSON(w, http.StatusOK, stats)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
