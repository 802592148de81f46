package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"rulechain-backend/application/services"
	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/valueobjects"
	"rulechain-backend/pkg/api"
	pkgerrors "rulechain-backend/pkg/errors"
)

// ChainHandler handles rule chain HTTP requests
type ChainHandler struct {
	service  *services.LinkageService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewChainHandler creates a new chain handler
func NewChainHandler(service *services.LinkageService, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateChain handles POST /chains
func (h *ChainHandler) CreateChain(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantFrom(w, r)
	if !ok {
		return
	}

	var req createChainRequest
	if !h.decode(w, r, &req) {
		return
	}

	kind, err := aggregates.ParseChainKind(req.Kind)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	chain, err := aggregates.NewRuleChain(tenantID, req.Name, kind)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	chain.SetDebugMode(req.DebugMode)

	saved, err := h.service.SaveChain(r.Context(), chain)
	if err != nil {
		h.logger.Error("Failed to create chain",
			zap.String("tenantID", tenantID.String()),
			zap.Error(err),
		)
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, toChainResponse(saved))
}

// UpdateChain handles PUT /chains/{chainID}
func (h *ChainHandler) UpdateChain(w http.ResponseWriter, r *http.Request) {
	tenantID, chainID, ok := h.tenantAndChainFrom(w, r)
	if !ok {
		return
	}

	var req updateChainRequest
	if !h.decode(w, r, &req) {
		return
	}

	chain, err := h.service.GetChain(r.Context(), tenantID, chainID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if err := chain.Rename(req.Name); err != nil {
		api.HandleError(w, err)
		return
	}
	chain.SetDebugMode(req.DebugMode)

	saved, err := h.service.SaveChain(r.Context(), chain)
	if err != nil {
		h.logger.Error("Failed to update chain",
			zap.String("chainID", chainID.String()),
			zap.Error(err),
		)
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toChainResponse(saved))
}

// CreateDefault handles POST /chains/default
func (h *ChainHandler) CreateDefault(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantFrom(w, r)
	if !ok {
		return
	}

	var req defaultChainRequest
	if !h.decode(w, r, &req) {
		return
	}

	chain, err := h.service.SaveDefaultByName(r.Context(), tenantID, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, toChainResponse(chain))
}

// GetChain handles GET /chains/{chainID}
func (h *ChainHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	tenantID, chainID, ok := h.tenantAndChainFrom(w, r)
	if !ok {
		return
	}

	chain, err := h.service.GetChain(r.Context(), tenantID, chainID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toChainResponse(chain))
}

// DeleteChain handles DELETE /chains/{chainID}
func (h *ChainHandler) DeleteChain(w http.ResponseWriter, r *http.Request) {
	tenantID, chainID, ok := h.tenantAndChainFrom(w, r)
	if !ok {
		return
	}

	chain, err := h.service.GetChain(r.Context(), tenantID, chainID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.service.DeleteChain(r.Context(), chain); err != nil {
		h.logger.Error("Failed to delete chain",
			zap.String("chainID", chainID.String()),
			zap.Error(err),
		)
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusNoContent, nil)
}

// SetRoot handles POST /chains/{chainID}/root
func (h *ChainHandler) SetRoot(w http.ResponseWriter, r *http.Request) {
	tenantID, chainID, ok := h.tenantAndChainFrom(w, r)
	if !ok {
		return
	}

	chain, err := h.service.GetChain(r.Context(), tenantID, chainID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	updated, err := h.service.SetRootChain(r.Context(), chain)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toChainResponse(updated))
}

// GetMetadata handles GET /chains/{chainID}/metadata
func (h *ChainHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	tenantID, chainID, ok := h.tenantAndChainFrom(w, r)
	if !ok {
		return
	}

	metadata, err := h.service.LoadMetadata(r.Context(), tenantID, chainID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toMetadataResponse(metadata))
}

// SaveMetadata handles POST /chains/{chainID}/metadata. The updateRelated
// query parameter controls whether output label renames propagate to
// referencing chains; it defaults to true.
func (h *ChainHandler) SaveMetadata(w http.ResponseWriter, r *http.Request) {
	tenantID, chainID, ok := h.tenantAndChainFrom(w, r)
	if !ok {
		return
	}

	var req metadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chain, err := h.service.GetChain(r.Context(), tenantID, chainID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	metadata, err := req.toMetadata(chainID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	propagate := r.URL.Query().Get("updateRelated") != "false"

	saved, err := h.service.SaveMetadata(r.Context(), chain, metadata, propagate)
	if err != nil {
		h.logger.Error("Failed to save chain metadata",
			zap.String("chainID", chainID.String()),
			zap.Error(err),
		)
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toMetadataResponse(saved))
}

// GetOutputLabels handles GET /chains/{chainID}/output-labels
func (h *ChainHandler) GetOutputLabels(w http.ResponseWriter, r *http.Request) {
	tenantID, chainID, ok := h.tenantAndChainFrom(w, r)
	if !ok {
		return
	}

	labels, err := h.service.OutputLabels(r.Context(), tenantID, chainID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, labelsResponse{Labels: labels})
}

// GetUsages handles GET /chains/{chainID}/usages
func (h *ChainHandler) GetUsages(w http.ResponseWriter, r *http.Request) {
	tenantID, chainID, ok := h.tenantAndChainFrom(w, r)
	if !ok {
		return
	}

	usages, err := h.service.Usages(r.Context(), tenantID, chainID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toUsageResponses(usages))
}

// AssignToEdgeDevice handles POST /chains/{chainID}/edge-devices/{deviceID}
func (h *ChainHandler) AssignToEdgeDevice(w http.ResponseWriter, r *http.Request) {
	tenantID, chainID, ok := h.tenantAndChainFrom(w, r)
	if !ok {
		return
	}
	deviceID, err := valueobjects.ParseEdgeDeviceID(chi.URLParam(r, "deviceID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	chain, err := h.service.AssignToEdgeDevice(r.Context(), tenantID, chainID, deviceID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toChainResponse(chain))
}

// UnassignFromEdgeDevice handles DELETE /chains/{chainID}/edge-devices/{deviceID}
func (h *ChainHandler) UnassignFromEdgeDevice(w http.ResponseWriter, r *http.Request) {
	tenantID, chainID, ok := h.tenantAndChainFrom(w, r)
	if !ok {
		return
	}
	deviceID, err := valueobjects.ParseEdgeDeviceID(chi.URLParam(r, "deviceID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	chain, err := h.service.UnassignFromEdgeDevice(r.Context(), tenantID, chainID, deviceID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toChainResponse(chain))
}

// SetEdgeTemplateRoot handles POST /chains/{chainID}/edge-template-root
func (h *ChainHandler) SetEdgeTemplateRoot(w http.ResponseWriter, r *http.Request) {
	h.flagMutation(w, r, h.service.SetEdgeTemplateRoot)
}

// SetAutoAssign handles POST /chains/{chainID}/auto-assign
func (h *ChainHandler) SetAutoAssign(w http.ResponseWriter, r *http.Request) {
	h.flagMutation(w, r, h.service.SetAutoAssignToEdge)
}

// UnsetAutoAssign handles DELETE /chains/{chainID}/auto-assign
func (h *ChainHandler) UnsetAutoAssign(w http.ResponseWriter, r *http.Request) {
	h.flagMutation(w, r, h.service.UnsetAutoAssignToEdge)
}

// Helper methods

func (h *ChainHandler) flagMutation(w http.ResponseWriter, r *http.Request, mutate func(ctx context.Context, chain *aggregates.RuleChain) error) {
	tenantID, chainID, ok := h.tenantAndChainFrom(w, r)
	if !ok {
		return
	}

	chain, err := h.service.GetChain(r.Context(), tenantID, chainID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if err := mutate(r.Context(), chain); err != nil {
		api.HandleError(w, err)
		return
	}

	// The flag is persisted repository-side; reload so the response
	// reflects the stored state.
	updated, err := h.service.GetChain(r.Context(), tenantID, chainID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toChainResponse(updated))
}

// tenantFrom extracts the tenant from the X-Tenant-ID header
func (h *ChainHandler) tenantFrom(w http.ResponseWriter, r *http.Request) (valueobjects.TenantID, bool) {
	tenantID, err := valueobjects.NewTenantID(r.Header.Get("X-Tenant-ID"))
	if err != nil {
		api.HandleError(w, pkgerrors.NewValidation("X-Tenant-ID header is required"))
		return valueobjects.TenantID{}, false
	}
	return tenantID, true
}

func (h *ChainHandler) tenantAndChainFrom(w http.ResponseWriter, r *http.Request) (valueobjects.TenantID, valueobjects.ChainID, bool) {
	tenantID, ok := h.tenantFrom(w, r)
	if !ok {
		return valueobjects.TenantID{}, valueobjects.ChainID{}, false
	}
	chainID, err := valueobjects.ParseChainID(chi.URLParam(r, "chainID"))
	if err != nil {
		api.HandleError(w, err)
		return valueobjects.TenantID{}, valueobjects.ChainID{}, false
	}
	return tenantID, chainID, true
}

// decode parses and validates a JSON request body
func (h *ChainHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
