package rbac

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

// mockRepository keeps rows in memory and enforces the same "one active row per
// pair" and "one active name" rules as the partial unique indexes.
type mockRepository struct {
	mu     sync.Mutex
	roles  map[int64]Role
	perms  map[int64]Permission
	grants map[GrantKind][]*Grant
	nextID int64

	// Error injection
	txError   error
	findError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles: make(map[int64]Role),
		perms: make(map[int64]Permission),
		grants: map[GrantKind][]*Grant{
			KindUserRole:       nil,
			KindRolePermission: nil,
		},
		nextID: 1,
	}
}

func (m *mockRepository) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockRepository) WithReadSnapshot(ctx context.Context, fn func(context.Context, Repository) error) error {
	return m.WithTx(ctx, fn)
}

func (m *mockRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if existing.Active() && existing.Name == role.Name {
			return Role{}, ErrDuplicateName
		}
	}
	role.ID = m.id()
	role.State = StateActive
	m.roles[role.ID] = role
	return role, nil
}

func (m *mockRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.roles[role.ID]
	if !ok || !current.Active() {
		return Role{}, ErrNotFound
	}
	for id, existing := range m.roles {
		if id != role.ID && existing.Active() && existing.Name == role.Name {
			return Role{}, ErrDuplicateName
		}
	}
	m.roles[role.ID] = role
	return role, nil
}

func (m *mockRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *mockRepository) GetRolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Role{}
	for _, id := range ids {
		if role, ok := m.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (m *mockRepository) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepository) RevokeRole(ctx context.Context, id, actorID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok || !role.Active() {
		return ErrNotFound
	}
	role.State = StateRevoked
	role.RevokedBy = &actorID
	role.RevokedAt = &at
	m.roles[id] = role
	return nil
}

func (m *mockRepository) LockRole(ctx context.Context, id int64, _ LockMode) (Role, error) {
	return m.GetRole(ctx, id)
}

func (m *mockRepository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.perms {
		if existing.Active() && existing.Name == perm.Name {
			return Permission{}, ErrDuplicateName
		}
	}
	perm.ID = m.id()
	perm.State = StateActive
	m.perms[perm.ID] = perm
	return perm, nil
}

func (m *mockRepository) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.perms[perm.ID]
	if !ok || !current.Active() {
		return Permission{}, ErrNotFound
	}
	for id, existing := range m.perms {
		if id != perm.ID && existing.Active() && existing.Name == perm.Name {
			return Permission{}, ErrDuplicateName
		}
	}
	m.perms[perm.ID] = perm
	return perm, nil
}

func (m *mockRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	perm, ok := m.perms[id]
	if !ok {
		return Permission{}, ErrNotFound
	}
	return perm, nil
}

func (m *mockRepository) GetPermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Permission{}
	for _, id := range ids {
		if perm, ok := m.perms[id]; ok {
			out = append(out, perm)
		}
	}
	return out, nil
}

func (m *mockRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0, len(m.perms))
	for _, perm := range m.perms {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepository) RevokePermission(ctx context.Context, id, actorID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	perm, ok := m.perms[id]
	if !ok || !perm.Active() {
		return ErrNotFound
	}
	perm.State = StateRevoked
	perm.RevokedBy = &actorID
	perm.RevokedAt = &at
	m.perms[id] = perm
	return nil
}

func (m *mockRepository) LockPermission(ctx context.Context, id int64, _ LockMode) (Permission, error) {
	return m.GetPermission(ctx, id)
}

func (m *mockRepository) FindGrant(ctx context.Context, kind GrantKind, subjectID, targetID int64) (Grant, error) {
	if m.findError != nil {
		return Grant{}, m.findError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Grant
	for _, g := range m.grants[kind] {
		if g.SubjectID != subjectID || g.TargetID != targetID {
			continue
		}
		if g.Active() {
			return *g, nil
		}
		if found == nil || g.UpdatedAt.After(found.UpdatedAt) {
			found = g
		}
	}
	if found == nil {
		return Grant{}, ErrNotFound
	}
	return *found, nil
}

func (m *mockRepository) activeExists(kind GrantKind, subjectID, targetID int64) bool {
	for _, g := range m.grants[kind] {
		if g.SubjectID == subjectID && g.TargetID == targetID && g.Active() {
			return true
		}
	}
	return false
}

func (m *mockRepository) InsertGrant(ctx context.Context, grant Grant) (Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeExists(grant.Kind, grant.SubjectID, grant.TargetID) {
		return Grant{}, errActiveGrantExists
	}
	grant.ID = m.id()
	grant.State = StateActive
	stored := grant
	m.grants[grant.Kind] = append(m.grants[grant.Kind], &stored)
	return stored, nil
}

func (m *mockRepository) ReactivateGrant(ctx context.Context, kind GrantKind, id, actorID int64, at time.Time) (Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grants[kind] {
		if g.ID != id {
			continue
		}
		if g.Active() {
			return Grant{}, ErrNotFound
		}
		if m.activeExists(kind, g.SubjectID, g.TargetID) {
			return Grant{}, errActiveGrantExists
		}
		g.State = StateActive
		g.RevokedBy = nil
		g.RevokedAt = nil
		g.UpdatedBy = actorID
		g.UpdatedAt = at
		return *g, nil
	}
	return Grant{}, ErrNotFound
}

func (m *mockRepository) RevokeGrant(ctx context.Context, kind GrantKind, id, actorID int64, at time.Time) (Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grants[kind] {
		if g.ID != id || !g.Active() {
			continue
		}
		g.State = StateRevoked
		g.RevokedBy = &actorID
		g.RevokedAt = &at
		g.UpdatedBy = actorID
		g.UpdatedAt = at
		return *g, nil
	}
	return Grant{}, ErrGrantNotFound
}

func (m *mockRepository) ListGrantsBySubject(ctx context.Context, kind GrantKind, subjectID int64, activeOnly bool) ([]Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Grant{}
	for _, g := range m.grants[kind] {
		if g.SubjectID == subjectID && (!activeOnly || g.Active()) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *mockRepository) ListActiveGrantsByTarget(ctx context.Context, kind GrantKind, targetID int64) ([]Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Grant{}
	for _, g := range m.grants[kind] {
		if g.TargetID == targetID && g.Active() {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *mockRepository) CountActiveGrantsByTarget(ctx context.Context, kind GrantKind, targetID int64) (int, error) {
	grants, err := m.ListActiveGrantsByTarget(ctx, kind, targetID)
	return len(grants), err
}

func (m *mockRepository) EffectiveRoleNames(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, ur := range m.grants[KindUserRole] {
		if ur.SubjectID != userID || !ur.Active() {
			continue
		}
		if role, ok := m.roles[ur.TargetID]; ok && role.Active() {
			names = append(names, role.Name)
		}
	}
	return names, nil
}

func (m *mockRepository) EffectivePermissionNames(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, ur := range m.grants[KindUserRole] {
		if ur.SubjectID != userID || !ur.Active() {
			continue
		}
		role, ok := m.roles[ur.TargetID]
		if !ok || !role.Active() {
			continue
		}
		for _, rp := range m.grants[KindRolePermission] {
			if rp.SubjectID != role.ID || !rp.Active() {
				continue
			}
			if perm, ok := m.perms[rp.TargetID]; ok && perm.Active() {
				names = append(names, perm.Name)
			}
		}
	}
	return names, nil
}

// rows returns every stored row for the pair, in insertion order.
func (m *mockRepository) rows(kind GrantKind, subjectID, targetID int64) []Grant {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Grant
	for _, g := range m.grants[kind] {
		if g.SubjectID == subjectID && g.TargetID == targetID {
			out = append(out, *g)
		}
	}
	return out
}

// interleavingRepository runs a competing operation just before the first share lock
// taken inside a grant transaction, as if that operation committed first.
type interleavingRepository struct {
	*mockRepository
	beforeShareLock func()
}

func (r *interleavingRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *interleavingRepository) interleave(mode LockMode) {
	if mode != LockShare || r.beforeShareLock == nil {
		return
	}
	hook := r.beforeShareLock
	r.beforeShareLock = nil
	hook()
}

func (r *interleavingRepository) LockRole(ctx context.Context, id int64, mode LockMode) (Role, error) {
	r.interleave(mode)
	return r.mockRepository.LockRole(ctx, id, mode)
}

func (r *interleavingRepository) LockPermission(ctx context.Context, id int64, mode LockMode) (Permission, error) {
	r.interleave(mode)
	return r.mockRepository.LockPermission(ctx, id, mode)
}

// ============================================================================
// MOCK COLLABORATORS
// ============================================================================

type mockUsers struct {
	subjects map[int64]Subject
}

func newMockUsers(subjects ...Subject) *mockUsers {
	m := &mockUsers{subjects: make(map[int64]Subject)}
	for _, s := range subjects {
		m.subjects[s.ID] = s
	}
	return m
}

func (m *mockUsers) Subject(ctx context.Context, id int64) (Subject, error) {
	s, ok := m.subjects[id]
	if !ok {
		return Subject{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *mockUsers) Subjects(ctx context.Context, ids []int64) ([]Subject, error) {
	out := []Subject{}
	for _, id := range ids {
		if s, ok := m.subjects[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return r.err
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l.Action)
	}
	return out
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: make(map[string]int)}
}

func (c *countingRecorder) GrantOp(kind, op, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[kind+"/"+op+"/"+outcome]++
}

func (c *countingRecorder) GuardDecision(decision string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts["guard/"+decision]++
}

func (c *countingRecorder) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

// ============================================================================
// FIXTURES
// ============================================================================

type testService struct {
	*Service
	repo    *mockRepository
	users   *mockUsers
	audit   *recordingAudit
	metrics *countingRecorder
}

// steppingClock advances one second per reading so audit timestamps are distinguishable.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func newTestService(subjects ...Subject) *testService {
	repo := newMockRepository()
	users := newMockUsers(subjects...)
	audit := &recordingAudit{}
	metrics := newCountingRecorder()
	svc := NewService(repo, users, ServiceOptions{Audit: audit, Metrics: metrics, Now: steppingClock()})
	return &testService{Service: svc, repo: repo, users: users, audit: audit, metrics: metrics}
}

func activeUser(id int64, name string) Subject {
	return Subject{ID: id, Name: name, Active: true}
}

func (s *testService) mustRole(name string) Role {
	role, err := s.CreateRole(context.Background(), RoleInput{Name: name}, 1)
	if err != nil {
		panic(err)
	}
	return role
}

func (s *testService) mustPermission(name string) Permission {
	perm, err := s.CreatePermission(context.Background(), PermissionInput{Name: name}, 1)
	if err != nil {
		panic(err)
	}
	return perm
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
