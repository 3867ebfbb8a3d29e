package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// InstanceService is what the instance endpoints need from the manager.
type InstanceService interface {
	Create(ctx context.Context, kind domain.AlgoKind) (domain.AlgoInstance, error)
	Get(ctx context.Context, id int64) (domain.AlgoInstance, error)
	List(ctx context.Context) ([]domain.AlgoInstance, error)
	GetData(ctx context.Context, id int64) (domain.AlgoData, error)
	SetInput(ctx context.Context, id int64, params map[string]string) (domain.AlgoData, error)
	TogglePause(ctx context.Context, id int64) error
	Finalize(ctx context.Context, id int64) error
	Requote(ctx context.Context, id int64) error
}

// ExecutionLister lists the executions of an instance.
type ExecutionLister interface {
	ListByInstance(ctx context.Context, instanceID int64, opts domain.ListOpts) ([]domain.ArbitrageExecution, error)
}

// InstanceHandler serves the algo instance endpoints.
type InstanceHandler struct {
	instances  InstanceService
	executions ExecutionLister
	logger     *slog.Logger
}

// NewInstanceHandler creates an InstanceHandler.
func NewInstanceHandler(instances InstanceService, executions ExecutionLister, logger *slog.Logger) *InstanceHandler {
	return &InstanceHandler{
		instances:  instances,
		executions: executions,
		logger:     logger.With(slog.String("handler", "instances")),
	}
}

type createInstanceRequest struct {
	Kind domain.AlgoKind `json:"kind"`
}

type instanceResponse struct {
	Instance domain.AlgoInstance `json:"instance"`
	Data     domain.AlgoData     `json:"data"`
}

// List returns the active instances.
// GET /api/instances
func (h *InstanceHandler) List(w http.ResponseWriter, r *http.Request) {
	instances, err := h.instances.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list instances", err)
		return
	}
	if instances == nil {
		instances = []domain.AlgoInstance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"instances": instances})
}

// Create starts a new instance of the requested kind.
// POST /api/instances {"kind": "foxbit-otc"}
func (h *InstanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	}

	inst, err := h.instances.Create(r.Context(), req.Kind)
	if err != nil {
		writeServiceError(w, r, h.logger, "create instance", err)
		return
	}
	h.logger.InfoContext(r.Context(), "instance created",
		slog.Int64("instance_id", inst.ID),
		slog.String("kind", string(inst.AlgoKind)),
	)
	writeJSON(w, http.StatusCreated, inst)
}

// Get returns an instance and its live data.
// GET /api/instances/{id}
func (h *InstanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	inst, err := h.instances.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get instance", err)
		return
	}
	data, err := h.instances.GetData(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get instance data", err)
		return
	}
	writeJSON(w, http.StatusOK, instanceResponse{Instance: inst, Data: data})
}

// SetInput replaces the parameters of a running instance. Values may be
// sent as JSON strings or numbers.
// PUT /api/instances/{id}/input
func (h *InstanceHandler) SetInput(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	params := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			params[k] = v
		case json.Number:
			params[k] = v.String()
		case nil:
			params[k] = ""
		default:
			params[k] = fmt.Sprint(v)
		}
	}

	data, err := h.instances.SetInput(r.Context(), id, params)
	if err != nil {
		writeServiceError(w, r, h.logger, "set input", err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// TogglePause pauses a running instance or resumes a paused one.
// POST /api/instances/{id}/pause
func (h *InstanceHandler) TogglePause(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "toggle pause", h.instances.TogglePause)
}

// Finalize ends an instance.
// POST /api/instances/{id}/finalize
func (h *InstanceHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "finalize", h.instances.Finalize)
}

// Requote forces an OTC instance to publish its quote again.
// POST /api/instances/{id}/requote
func (h *InstanceHandler) Requote(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "requote", h.instances.Requote)
}

// command runs fn on the instance and answers with its data afterwards.
func (h *InstanceHandler) command(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, int64) error) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	if err := fn(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, action, err)
		return
	}
	h.logger.InfoContext(r.Context(), "instance command",
		slog.Int64("instance_id", id),
		slog.String("command", action),
	)
	data, err := h.instances.GetData(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get instance data", err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Executions pages through the executions of an instance.
// GET /api/instances/{id}/executions?limit=50&offset=0
func (h *InstanceHandler) Executions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	execs, err := h.executions.ListByInstance(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list executions", err)
		return
	}
	if execs == nil {
		execs = []domain.ArbitrageExecution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs})
}
