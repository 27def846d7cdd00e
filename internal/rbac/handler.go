package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Handler exposes the administrative JSON surface.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Guard
	validator *validator.Validate
}

// NewHandler builds the RBAC admin handler.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

type grantRequest struct {
	TargetID int64 `json:"target_id" validate:"required,gt=0"`
}

type batchRequest struct {
	TargetIDs []int64 `json:"target_ids" validate:"required,max=500,dive,gt=0"`
}

type replaceRequest struct {
	TargetIDs []int64 `json:"target_ids" validate:"max=500,dive,gt=0"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var in RoleInput
	if !h.decode(w, r, &in) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), in, actorID(r))
	if err != nil {
		h.fail(w, r, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) showRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var in RoleInput
	if !h.decode(w, r, &in) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, in, actorID(r))
	if err != nil {
		h.fail(w, r, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RevokeRole(r.Context(), id, actorID(r)); err != nil {
		h.fail(w, r, "revoke role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) roleUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	users, err := h.service.ListRoleUsers(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list role users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	perms, err := h.service.ListRolePermissions(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) grantRolePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var in grantRequest
	if !h.decode(w, r, &in) {
		return
	}
	grant, err := h.service.GrantRolePermission(r.Context(), id, in.TargetID, actorID(r))
	if err != nil {
		h.fail(w, r, "grant role permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grant)
}

func (h *Handler) bulkGrantRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var in batchRequest
	if !h.decode(w, r, &in) {
		return
	}
	result, err := h.service.BulkGrantRolePermissions(r.Context(), id, in.TargetIDs, actorID(r))
	if err != nil {
		h.fail(w, r, "bulk grant role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) replaceRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var in replaceRequest
	if !h.decode(w, r, &in) {
		return
	}
	result, err := h.service.ReplaceRolePermissions(r.Context(), id, in.TargetIDs, actorID(r))
	if err != nil {
		h.fail(w, r, "replace role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) revokeRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	permID, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.RevokeRolePermission(r.Context(), roleID, permID, actorID(r)); err != nil {
		h.fail(w, r, "revoke role permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, r, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var in PermissionInput
	if !h.decode(w, r, &in) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), in, actorID(r))
	if err != nil {
		h.fail(w, r, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) showPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	perm, err := h.service.GetPermission(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	var in PermissionInput
	if !h.decode(w, r, &in) {
		return
	}
	perm, err := h.service.UpdatePermission(r.Context(), id, in, actorID(r))
	if err != nil {
		h.fail(w, r, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.RevokePermission(r.Context(), id, actorID(r)); err != nil {
		h.fail(w, r, "revoke permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) permissionRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	roles, err := h.service.ListPermissionRoles(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list permission roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roles, err := h.service.ListUserRoles(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) assignUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var in grantRequest
	if !h.decode(w, r, &in) {
		return
	}
	grant, err := h.service.AssignUserRole(r.Context(), id, in.TargetID, actorID(r))
	if err != nil {
		h.fail(w, r, "assign user role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grant)
}

func (h *Handler) bulkAssignUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var in batchRequest
	if !h.decode(w, r, &in) {
		return
	}
	result, err := h.service.BulkAssignUserRoles(r.Context(), id, in.TargetIDs, actorID(r))
	if err != nil {
		h.fail(w, r, "bulk assign user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) replaceUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var in replaceRequest
	if !h.decode(w, r, &in) {
		return
	}
	result, err := h.service.ReplaceUserRoles(r.Context(), id, in.TargetIDs, actorID(r))
	if err != nil {
		h.fail(w, r, "replace user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) revokeUserRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RevokeUserRole(r.Context(), userID, roleID, actorID(r)); err != nil {
		h.fail(w, r, "revoke user role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.fail(w, r, "resolve user permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": id, "permissions": perms})
}

func (h *Handler) userHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	grants, err := h.service.GrantHistory(r.Context(), KindUserRole, id)
	if err != nil {
		h.fail(w, r, "user grant history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range verrs {
				fields = append(fields, fmt.Sprintf("%s: %s", strings.ToLower(fieldErr.Field()), fieldErr.Tag()))
			}
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(fields, "; "))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if isClientError(err) {
		h.logger.Info("rbac "+op, slog.Any("error", err))
	} else {
		h.logger.Error("rbac "+op, slog.Any("error", err))
	}
	RespondError(w, err)
}

func isClientError(err error) bool {
	for _, m := range errorMappings {
		if errors.Is(err, m.Err) {
			return true
		}
	}
	return false
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+param)
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	if claims := shared.ClaimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return 0
}
