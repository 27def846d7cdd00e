package rbac

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the referenced role, permission or user does not exist or is revoked.
	ErrNotFound = errors.New("rbac: not found")
	// ErrAlreadyGranted indicates a single assign on a pair that is already active.
	ErrAlreadyGranted = errors.New("rbac: already granted")
	// ErrInvalidTarget indicates a batch referencing at least one unresolvable target.
	ErrInvalidTarget = errors.New("rbac: invalid target")
	// ErrInactiveSubject indicates the subject exists but is deactivated.
	ErrInactiveSubject = errors.New("rbac: inactive subject")
	// ErrGrantNotFound indicates a revoke on a pair that has no active grant.
	ErrGrantNotFound = errors.New("rbac: grant not found")
	// ErrUnauthenticated indicates a protected request without valid token claims.
	ErrUnauthenticated = errors.New("rbac: unauthenticated")
	// ErrForbidden indicates the token claims lack a required permission.
	ErrForbidden = errors.New("rbac: forbidden")
	// ErrDuplicateName indicates an active role or permission already uses the name.
	ErrDuplicateName = errors.New("rbac: duplicate name")
	// ErrInUse indicates a role or permission still referenced by active grants.
	ErrInUse = errors.New("rbac: in use by active grants")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("rbac: validation failed")
)

// errActiveGrantExists is raised by repositories when the partial unique index
// on active grants rejects a write. Callers translate it, it never leaves the package.
var errActiveGrantExists = errors.New("rbac: active grant exists")

// InvalidTargetError lists the batch ids that failed validation.
type InvalidTargetError struct {
	Kind GrantKind
	IDs  []int64
}

func (e *InvalidTargetError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s: %s [%s]", ErrInvalidTarget.Error(), e.Kind, strings.Join(ids, ","))
}

func (e *InvalidTargetError) Unwrap() error { return ErrInvalidTarget }

// errorMappings maps the taxonomy onto HTTP problem responses.
var errorMappings = []httpx.ErrorMapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrGrantNotFound, Status: http.StatusNotFound, Title: "Grant Not Found"},
	{Err: ErrAlreadyGranted, Status: http.StatusConflict, Title: "Already Granted"},
	{Err: ErrDuplicateName, Status: http.StatusConflict, Title: "Duplicate Name"},
	{Err: ErrInUse, Status: http.StatusConflict, Title: "In Use"},
	{Err: ErrInvalidTarget, Status: http.StatusBadRequest, Title: "Invalid Target"},
	{Err: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Err: ErrInactiveSubject, Status: http.StatusUnprocessableEntity, Title: "Inactive Subject"},
	{Err: ErrUnauthenticated, Status: http.StatusUnauthorized, Title: "Unauthenticated"},
	{Err: ErrForbidden, Status: http.StatusForbidden, Title: "Forbidden"},
}

// RespondError writes err as a problem response using the RBAC error taxonomy.
func RespondError(w http.ResponseWriter, err error) {
	httpx.RespondError(w, err, errorMappings...)
}
