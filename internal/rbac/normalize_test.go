package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueIDsKeepsFirstOccurrence(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 0, -2}, uniqueIDs([]int64{3, 1, 3, 0, -2, 1, 0}))
	assert.Empty(t, uniqueIDs(nil))
}

func TestBulkAssignReportsNonPositiveIDsAsInvalid(t *testing.T) {
	svc := newTestService(activeUser(10, "Ana"))
	role := svc.mustRole("Clerk")

	_, err := svc.BulkAssignUserRoles(context.Background(), 10, []int64{role.ID, 0, -4}, 1)
	var invalid *InvalidTargetError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []int64{0, -4}, invalid.IDs)
	assert.Empty(t, svc.repo.rows(KindUserRole, 10, role.ID))
}
