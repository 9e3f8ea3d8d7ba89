package access

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clinova/accessd/internal/platform/httpx"
)

// Handler manages user access endpoints: assignments, overrides, copy and
// the boolean permission check.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver *Resolver
	gate     Gate
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver, gate Gate) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		resolver: resolver,
		gate:     gate,
		validate: validator.New(),
	}
}

// MountRoutes registers user access routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAny("usermanagement.read"))
		r.Get("/{userID}/access", h.getAccess)
		r.Get("/{userID}/permissions/{code}", h.checkPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAll("usermanagement.write"))
		r.Put("/{userID}/roles", h.assignRoles)
		r.Put("/{userID}/overrides", h.setOverrides)
		r.Post("/{userID}/access/copy", h.copyAccess)
	})
}

type roleDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsSystem    bool   `json:"is_system"`
}

type overrideDTO struct {
	Code   string `json:"code"`
	Effect string `json:"effect"`
}

type profileResponse struct {
	UserID    int64         `json:"user_id"`
	Roles     []roleDTO     `json:"roles"`
	Overrides []overrideDTO `json:"overrides"`
}

type assignRolesRequest struct {
	RoleIDs []int64 `json:"role_ids"`
}

type setOverridesRequest struct {
	Overrides []overrideItem `json:"overrides" validate:"dive"`
}

type overrideItem struct {
	Code   string `json:"code" validate:"required"`
	Effect string `json:"effect" validate:"required,oneof=grant revoke"`
}

type copyAccessRequest struct {
	SourceUserID int64 `json:"source_user_id" validate:"required"`
}

func (h *Handler) getAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	profile, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := profileResponse{UserID: profile.UserID, Roles: []roleDTO{}, Overrides: []overrideDTO{}}
	for _, role := range profile.Roles {
		resp.Roles = append(resp.Roles, roleDTO{ID: role.ID, Name: role.Name, Description: role.Description, IsSystem: role.IsSystem})
	}
	for _, ov := range profile.Overrides {
		resp.Overrides = append(resp.Overrides, overrideDTO{Code: ov.PermissionCode, Effect: string(ov.Effect)})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "code")
	allowed, err := h.resolver.HasPermission(r.Context(), userID, code)
	if err != nil {
		h.logger.Error("check permission", slog.Any("error", err))
		httpx.Internal(w)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"code": code, "allowed": allowed})
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req assignRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid JSON body")
		return
	}
	if err := h.service.AssignRoles(r.Context(), userID, req.RoleIDs); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req setOverridesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	inputs := make([]OverrideInput, 0, len(req.Overrides))
	for _, item := range req.Overrides {
		inputs = append(inputs, OverrideInput{PermissionCode: item.Code, Effect: Effect(item.Effect)})
	}
	if err := h.service.SetOverrides(r.Context(), userID, inputs); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) copyAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req copyAccessRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.service.CopyAccess(r.Context(), userID, req.SourceUserID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.BadRequest(w, "invalid user id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnknownRole), errors.Is(err, ErrUnknownPermission), errors.Is(err, ErrDuplicatePermission):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Reference", err.Error())
	default:
		h.logger.Error("access request failed", slog.Any("error", err))
		httpx.Internal(w)
	}
}
