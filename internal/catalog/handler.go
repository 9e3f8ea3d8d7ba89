package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinova/accessd/internal/access"
	"github.com/clinova/accessd/internal/platform/httpx"
)

// Handler exposes the permission catalog, grouped by domain for display
// and select-all-in-domain bulk operations.
type Handler struct {
	logger  *slog.Logger
	service *Service
	gate    access.Gate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate access.Gate) *Handler {
	return &Handler{logger: logger, service: service, gate: gate}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAny("rolemanagement.read", "usermanagement.read"))
		r.Get("/", h.listPermissions)
		r.Get("/{code}", h.getPermission)
	})
}

type permissionDTO struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

type domainGroupDTO struct {
	Domain      string          `json:"domain"`
	Permissions []permissionDTO `json:"permissions"`
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	p, err := h.service.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get permission", slog.Any("error", err))
		httpx.Internal(w)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"code":        p.Code,
		"domain":      p.Domain,
		"description": p.Description,
	})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.Internal(w)
		return
	}
	groups := GroupByDomain(perms)
	resp := make([]domainGroupDTO, 0, len(groups))
	for _, g := range groups {
		dto := domainGroupDTO{Domain: g.Domain, Permissions: make([]permissionDTO, 0, len(g.Permissions))}
		for _, p := range g.Permissions {
			dto.Permissions = append(dto.Permissions, permissionDTO{Code: p.Code, Description: p.Description})
		}
		resp = append(resp, dto)
	}
	httpx.JSON(w, http.StatusOK, resp)
}
