package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/graphdesk/server/internal/agent/catalog"
	"github.com/graphdesk/server/internal/agent/planner"
	"github.com/graphdesk/server/internal/agent/prompts"
	"github.com/graphdesk/server/internal/llm"
	"github.com/graphdesk/server/internal/store"
	logx "github.com/graphdesk/server/pkg/logger"
)

// dashboardHandler backs the agent console: ticket queues, the escalation
// review flow, and the learning loop that turns resolved escalations into
// new intent rules.
type dashboardHandler struct {
	graph *store.Graph
	cat   *catalog.Catalog
	gen   llm.Generator
}

func (h *dashboardHandler) listTickets(w http.ResponseWriter, r *http.Request) {
	rows, err := h.graph.ListTickets(r.Context())
	if err != nil {
		logx.Error().Err(err).Msg("ticket listing failed")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *dashboardHandler) listEscalations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.graph.ListEscalations(r.Context())
	if err != nil {
		logx.Error().Err(err).Msg("escalation listing failed")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *dashboardHandler) listSuggestions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.graph.ListSuggestions(r.Context())
	if err != nil {
		logx.Error().Err(err).Msg("suggestion listing failed")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *dashboardHandler) listIntents(w http.ResponseWriter, r *http.Request) {
	defs, err := h.graph.LoadIntents(r.Context())
	if err != nil {
		logx.Error().Err(err).Msg("intent listing failed")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

type resolveRequest struct {
	ResolutionNote string `json:"resolutionNote"`
}

// resolveTicket closes an escalation and kicks off rule synthesis in the
// background. The agent's note is the guidance the synthesizer works from;
// resolution never waits on the model.
func (h *dashboardHandler) resolveTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResolutionNote == "" {
		writeError(w, http.StatusBadRequest, "a resolution note is required")
		return
	}

	query, hypothesis, err := h.graph.ResolveTicket(r.Context(), ticketID, req.ResolutionNote)
	if err != nil {
		logx.Error().Err(err).Str("ticketID", ticketID).Msg("ticket resolution failed")
		writeError(w, http.StatusInternalServerError, "failed to resolve ticket")
		return
	}

	c := claimsFrom(r.Context())
	agentID := ""
	if c != nil {
		agentID = c.CustomerID
	}
	go h.synthesizeRule(query, hypothesis, req.ResolutionNote, agentID)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ticketId": ticketID})
}

// synthesizeRule proposes a new intent rule from a resolved escalation and
// files it as a suggestion for review. Failures are logged and dropped; the
// ticket is already resolved.
func (h *dashboardHandler) synthesizeRule(query, hypothesis, guidance, agentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prompt, err := prompts.RenderSynthesize(ctx, query, hypothesis, guidance)
	if err != nil {
		logx.Error().Err(err).Msg("rule synthesis prompt failed")
		return
	}
	raw, err := h.gen.Generate(ctx, prompt)
	if err != nil {
		logx.Error().Err(err).Msg("rule synthesis generation failed")
		return
	}
	obj, err := planner.ExtractJSONObject(raw)
	if err != nil {
		logx.Error().Err(err).Msg("rule synthesis returned no JSON")
		return
	}

	var proposed struct {
		IntentName       string   `json:"intentName"`
		Description      string   `json:"description"`
		RequiredEntities []string `json:"requiredEntities"`
	}
	if err := json.Unmarshal([]byte(obj), &proposed); err != nil || proposed.IntentName == "" {
		logx.Error().Err(err).Msg("rule synthesis payload unusable")
		return
	}

	id, err := h.graph.CreateSuggestion(ctx, store.SuggestionInput{
		Query:               query,
		Guidance:            guidance,
		FailedHypothesis:    hypothesis,
		AgentID:             agentID,
		ProposedIntent:      proposed.IntentName,
		ProposedEntities:    proposed.RequiredEntities,
		ProposedDescription: proposed.Description,
	})
	if err != nil {
		logx.Error().Err(err).Msg("failed to file synthesized suggestion")
		return
	}
	logx.Info().Str("suggestionID", id).Str("intent", proposed.IntentName).Msg("rule suggestion filed for review")
}

type intentRequest struct {
	IntentName     string   `json:"intentName"`
	Description    string   `json:"description"`
	RequiredFields []string `json:"requiredFields"`
}

// approveSuggestion promotes a reviewed suggestion into a live intent. The
// agent may have edited the proposal, so the request body is authoritative.
func (h *dashboardHandler) approveSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "suggestionID")

	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IntentName == "" {
		writeError(w, http.StatusBadRequest, "an intent name is required")
		return
	}

	if err := h.graph.UpsertIntent(r.Context(), req.IntentName, req.Description, req.RequiredFields); err != nil {
		logx.Error().Err(err).Str("intent", req.IntentName).Msg("intent upsert failed")
		writeError(w, http.StatusInternalServerError, "failed to create intent")
		return
	}
	if err := h.graph.DeleteSuggestion(r.Context(), id); err != nil {
		logx.Error().Err(err).Str("suggestionID", id).Msg("failed to remove approved suggestion")
	}

	h.reloadCatalog(r.Context())
	logx.Info().Str("intent", req.IntentName).Str("suggestionID", id).Msg("suggestion approved into catalog")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "intentName": req.IntentName})
}

func (h *dashboardHandler) updateSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "suggestionID")

	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.graph.UpdateSuggestion(r.Context(), id, req.IntentName, req.Description, req.RequiredFields); err != nil {
		logx.Error().Err(err).Str("suggestionID", id).Msg("suggestion update failed")
		writeError(w, http.StatusInternalServerError, "failed to update suggestion")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *dashboardHandler) rejectSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "suggestionID")

	if err := h.graph.DeleteSuggestion(r.Context(), id); err != nil {
		logx.Error().Err(err).Str("suggestionID", id).Msg("suggestion rejection failed")
		writeError(w, http.StatusInternalServerError, "failed to reject suggestion")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *dashboardHandler) updateIntent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "intentName")

	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.graph.UpsertIntent(r.Context(), name, req.Description, req.RequiredFields); err != nil {
		logx.Error().Err(err).Str("intent", name).Msg("intent update failed")
		writeError(w, http.StatusInternalServerError, "failed to update intent")
		return
	}
	h.reloadCatalog(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *dashboardHandler) deleteIntent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "intentName")

	if err := h.graph.DeleteIntent(r.Context(), name); err != nil {
		logx.Error().Err(err).Str("intent", name).Msg("intent deletion failed")
		writeError(w, http.StatusInternalServerError, "failed to delete intent")
		return
	}
	h.reloadCatalog(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *dashboardHandler) reloadCatalog(ctx context.Context) {
	if err := h.cat.Reload(ctx); err != nil {
		logx.Error().Err(err).Msg("catalog reload after edit failed, serving last-good snapshot")
	}
}
