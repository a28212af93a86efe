package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"agentmem/internal/apperr"
	"agentmem/internal/facade"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
	"agentmem/internal/prime"
	"agentmem/internal/recall"
)

type handlers struct {
	mgr    *facade.MemoryManager
	logger *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps apperr.Kind to an HTTP status: Invalid is 400,
// Overflow/Budget are 429, NotSupported is 501, Transient is 503, and
// everything else is 500.
func statusFor(err error) int {
	switch {
	case apperr.Is(err, apperr.Invalid):
		return http.StatusBadRequest
	case apperr.Is(err, apperr.NotSupported):
		return http.StatusNotImplemented
	case apperr.Is(err, apperr.Overflow), apperr.Is(err, apperr.Budget):
		return http.StatusTooManyRequests
	case apperr.Is(err, apperr.Transient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type storeRequest struct {
	Type               string         `json:"type" validate:"required,oneof=working episodic semantic procedural"`
	Content            string         `json:"content" validate:"required"`
	Keywords           []string       `json:"keywords" validate:"omitempty,dive,max=100"`
	SessionID          string         `json:"session_id"`
	TokenCount         int            `json:"token_count" validate:"gte=0"`
	Importance         float64        `json:"importance" validate:"gte=0,lte=1"`
	NeverDecay         bool           `json:"never_decay"`
	CustomHalfLifeDays *float64       `json:"custom_half_life_days" validate:"omitempty,gt=0"`
	Reinforceable      bool           `json:"reinforceable"`
	Metadata           map[string]any `json:"metadata"`
}

func (h *handlers) storeMemory(w http.ResponseWriter, r *http.Request) {
	userID, agentID := identity(r)
	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := requestValidator().Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	m, err := h.mgr.Store(r.Context(), userID, agentID, memdomain.Type(req.Type), memdomain.NewMemoryParams{
		Content: req.Content, Keywords: req.Keywords, SessionID: req.SessionID, TokenCount: req.TokenCount,
		Importance: req.Importance, NeverDecay: req.NeverDecay, CustomHalfLifeDays: req.CustomHalfLifeDays,
		Reinforceable: req.Reinforceable, Metadata: req.Metadata,
	}, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, memoryDTO(m))
}

func (h *handlers) deleteMemory(w http.ResponseWriter, r *http.Request) {
	userID, agentID := identity(r)
	memoryID := chi.URLParam(r, "memoryID")
	if err := h.mgr.DeleteMemory(r.Context(), userID, agentID, memoryID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type recallRequest struct {
	Text   string `json:"text" validate:"required"`
	Type   string `json:"type" validate:"omitempty,oneof=working episodic semantic procedural"`
	Limit  int    `json:"limit" validate:"omitempty,gt=0"`
	Preset string `json:"preset" validate:"omitempty,oneof=default precision performance research"`
}

func (h *handlers) recall(w http.ResponseWriter, r *http.Request) {
	userID, agentID := identity(r)
	var req recallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := requestValidator().Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	q := recall.Query{Text: req.Text, Limit: req.Limit, Preset: presetFor(req.Preset)}
	if req.Type != "" {
		t := memdomain.Type(req.Type)
		q.Type = &t
	}
	results, err := h.mgr.Recall(r.Context(), userID, agentID, q, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scoredDTOs(results))
}

func presetFor(name string) memconfig.RecallWeights {
	presets := memconfig.DefaultRecallPresets()
	switch name {
	case "precision":
		return presets.Precision
	case "performance":
		return presets.Performance
	case "research":
		return presets.Research
	default:
		return presets.Default
	}
}

func (h *handlers) decay(w http.ResponseWriter, r *http.Request) {
	userID, agentID := identity(r)
	typ := memdomain.Type(r.URL.Query().Get("type"))
	result, err := h.mgr.Decay(r.Context(), userID, agentID, typ, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) flushDecay(w http.ResponseWriter, r *http.Request) {
	result, err := h.mgr.FlushLazyDecayUpdates(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type connectionRequest struct {
	SourceID string  `json:"source_id" validate:"required"`
	TargetID string  `json:"target_id" validate:"required"`
	Type     string  `json:"type" validate:"required,oneof=similar related causes part_of opposite"`
	Strength float64 `json:"strength" validate:"gte=0,lte=1"`
	Reason   string  `json:"reason"`
}

func (h *handlers) createConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := requestValidator().Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	sourceID, err := memdomain.ParseMemoryID(req.SourceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	targetID, err := memdomain.ParseMemoryID(req.TargetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conn, err := h.mgr.CreateConnection(r.Context(), sourceID, targetID, memdomain.ConnectionType(req.Type), req.Strength, req.Reason, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, connectionDTO(conn))
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	userID, agentID := identity(r)
	st, err := h.mgr.GetStats(r.Context(), userID, agentID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) clearWorkingMemory(w http.ResponseWriter, r *http.Request) {
	userID, agentID := identity(r)
	if err := h.mgr.ClearWorkingMemory(r.Context(), userID, agentID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) workingContext(w http.ResponseWriter, r *http.Request) {
	userID, agentID := identity(r)
	sessionID := r.URL.Query().Get("session_id")
	memories, err := h.mgr.GetWorkingContext(r.Context(), userID, agentID, sessionID, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	dtos := make([]memoryDTOShape, len(memories))
	for i, m := range memories {
		dtos[i] = memoryDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

type learnRequest struct {
	Messages []struct {
		Content   string    `json:"content" validate:"required"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"messages" validate:"omitempty,dive"`
	Rules []struct {
		ID                 string   `json:"id" validate:"required"`
		Type               string   `json:"type" validate:"required,oneof=working episodic semantic procedural"`
		Guidance           string   `json:"guidance" validate:"required"`
		NeverDecay         bool     `json:"never_decay"`
		Reinforceable      bool     `json:"reinforceable"`
		CustomHalfLifeDays *float64 `json:"custom_half_life_days" validate:"omitempty,gt=0"`
	} `json:"rules" validate:"omitempty,dive"`
}

func (h *handlers) learn(w http.ResponseWriter, r *http.Request) {
	userID, agentID := identity(r)
	var req learnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := requestValidator().Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	messages := make([]prime.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = prime.Message{Content: m.Content, Timestamp: m.Timestamp}
	}
	rules := make([]prime.Rule, len(req.Rules))
	for i, rr := range req.Rules {
		rules[i] = prime.Rule{
			ID: rr.ID, Type: memdomain.Type(rr.Type), Guidance: rr.Guidance,
			NeverDecay: rr.NeverDecay, Reinforceable: rr.Reinforceable, CustomHalfLifeDays: rr.CustomHalfLifeDays,
		}
	}
	extracted, metrics, err := h.mgr.Learn(r.Context(), userID, agentID, messages, rules, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	dtos := make([]memoryDTOShape, len(extracted))
	for i, m := range extracted {
		dtos[i] = memoryDTO(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": dtos, "metrics": metrics})
}

func (h *handlers) recommendations(w http.ResponseWriter, r *http.Request) {
	userID, agentID := identity(r)
	typ := memdomain.Type(r.URL.Query().Get("type"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := h.mgr.GetRecommendations(r.Context(), userID, agentID, typ, limit, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	out := make([]map[string]any, len(recs))
	for i, rec := range recs {
		out[i] = map[string]any{"memory": memoryDTO(rec.Memory), "score": rec.Score}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) searchKnowledge(w http.ResponseWriter, r *http.Request) {
	userID, agentID := identity(r)
	query := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.mgr.SearchKnowledge(r.Context(), userID, agentID, query, limit, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scoredDTOs(results))
}

func (h *handlers) consolidate(w http.ResponseWriter, r *http.Request) {
	userID, agentID := identity(r)
	result, err := h.mgr.ConsolidateMemories(r.Context(), userID, agentID, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- DTOs ---

type memoryDTOShape struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Content     string         `json:"content"`
	Keywords    []string       `json:"keywords"`
	Importance  float64        `json:"importance"`
	Resonance   float64        `json:"resonance"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Metadata    map[string]any `json:"metadata"`
}

func memoryDTO(m *memdomain.Memory) memoryDTOShape {
	return memoryDTOShape{
		ID: m.ID().String(), Type: string(m.Type()), Content: m.Content(), Keywords: m.Keywords(),
		Importance: m.Importance(), Resonance: m.StoredResonance(), Status: string(m.Status()),
		CreatedAt: m.CreatedAt(), UpdatedAt: m.UpdatedAt(), Metadata: m.Metadata(),
	}
}

type scoredDTOShape struct {
	Memory memoryDTOShape `json:"memory"`
	Score  float64        `json:"score"`
}

func scoredDTOs(results []recall.Scored) []scoredDTOShape {
	out := make([]scoredDTOShape, len(results))
	for i, res := range results {
		out[i] = scoredDTOShape{Memory: memoryDTO(res.Memory), Score: res.Score}
	}
	return out
}

type connectionDTOShape struct {
	ID       string  `json:"id"`
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
	Reason   string  `json:"reason"`
}

func connectionDTO(c *memdomain.MemoryConnection) connectionDTOShape {
	return connectionDTOShape{
		ID: c.ID().String(), SourceID: c.SourceID().String(), TargetID: c.TargetID().String(),
		Type: string(c.Type()), Strength: c.Strength(), Reason: c.Reason(),
	}
}
