package rbac

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// MountRoutes attaches the admin routes under the current router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.With(h.guard.RequireAll(shared.PermRolesView)).Get("/", h.listRoles)
		r.With(h.guard.RequireAll(shared.PermRolesEdit)).Post("/", h.createRole)
		r.Route("/{roleID}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.guard.RequireAll(shared.PermRolesView))
				r.Get("/", h.showRole)
				r.Get("/permissions", h.rolePermissions)
			})
			r.Group(func(r chi.Router) {
				r.Use(h.guard.RequireAll(shared.PermRolesEdit))
				r.Put("/", h.updateRole)
				r.Delete("/", h.revokeRole)
				r.Post("/permissions", h.grantRolePermission)
				r.Put("/permissions", h.replaceRolePermissions)
				r.Post("/permissions/bulk", h.bulkGrantRolePermissions)
				r.Delete("/permissions/{permissionID}", h.revokeRolePermission)
			})
			r.With(h.guard.RequireAll(shared.PermUsersView)).Get("/users", h.roleUsers)
		})
	})
	r.Route("/permissions", func(r chi.Router) {
		r.With(h.guard.RequireAll(shared.PermPermissionsView)).Get("/", h.listPermissions)
		r.With(h.guard.RequireAll(shared.PermPermissionsEdit)).Post("/", h.createPermission)
		r.Route("/{permissionID}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.guard.RequireAll(shared.PermPermissionsView))
				r.Get("/", h.showPermission)
				r.Get("/roles", h.permissionRoles)
			})
			r.Group(func(r chi.Router) {
				r.Use(h.guard.RequireAll(shared.PermPermissionsEdit))
				r.Put("/", h.updatePermission)
				r.Delete("/", h.revokePermission)
			})
		})
	})
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAll(shared.PermUsersView))
			r.Get("/roles", h.userRoles)
			r.Get("/permissions", h.userPermissions)
			r.Get("/history", h.userHistory)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAll(shared.PermUsersEdit))
			r.Post("/roles", h.assignUserRole)
			r.Put("/roles", h.replaceUserRoles)
			r.Post("/roles/bulk", h.bulkAssignUserRoles)
			r.Delete("/roles/{roleID}", h.revokeUserRole)
		})
	})
}
