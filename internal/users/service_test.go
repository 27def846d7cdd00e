package users

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type mockRepository struct {
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newMockRepository(users ...User) *mockRepository {
	m := &mockRepository{users: make(map[int64]User), hashes: make(map[int64]string), nextID: 100}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockRepository) ListUsers(ctx context.Context) ([]User, error) {
	out := []User{}
	for _, u := range m.users {
		if u.DeletedAt == nil {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepository) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *mockRepository) GetUsersByIDs(ctx context.Context, ids []int64) ([]User, error) {
	out := []User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockRepository) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) && u.DeletedAt == nil {
			return User{}, ErrEmailTaken
		}
	}
	m.nextID++
	u := User{ID: m.nextID, Email: strings.ToLower(email), Name: name, IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.users[u.ID] = u
	m.hashes[u.ID] = passwordHash
	return u, nil
}

func (m *mockRepository) SetActive(ctx context.Context, id int64, active bool) error {
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return shared.ErrNotFound
	}
	u.IsActive = active
	m.users[id] = u
	return nil
}

func TestSubjectMapsUserState(t *testing.T) {
	deletedAt := time.Now()
	repo := newMockRepository(
		User{ID: 1, Name: "Ana", Email: "ana@example.com", IsActive: true},
		User{ID: 2, Name: "Budi", IsActive: false},
		User{ID: 3, Name: "Citra", IsActive: true, DeletedAt: &deletedAt},
	)
	svc := NewService(repo)
	ctx := context.Background()

	subject, err := svc.Subject(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, rbac.Subject{ID: 1, Name: "Ana", Email: "ana@example.com", Active: true}, subject)

	subject, err = svc.Subject(ctx, 2)
	require.NoError(t, err)
	assert.False(t, subject.Active)

	subject, err = svc.Subject(ctx, 3)
	require.NoError(t, err)
	assert.True(t, subject.Deleted)

	_, err = svc.Subject(ctx, 404)
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	subjects, err := svc.Subjects(ctx, []int64{1, 2, 3, 404})
	require.NoError(t, err)
	assert.Len(t, subjects, 2)
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	svc.bcryptCost = bcrypt.MinCost

	user, err := svc.CreateUser(context.Background(), CreateUserInput{Email: " Ana@Example.com ", Name: " Ana ", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, "Ana", user.Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[user.ID]), []byte("s3cret-pass")))

	_, err = svc.CreateUser(context.Background(), CreateUserInput{Email: "ana@example.com", Name: "Other", Password: "s3cret-pass"})
	assert.True(t, errors.Is(err, ErrEmailTaken))
}

func TestHandlerGuardsAndDeactivates(t *testing.T) {
	repo := newMockRepository(User{ID: 1, Name: "Ana", IsActive: true})
	h := NewHandler(nil, NewService(repo), rbac.Guard{})

	newRouter := func(perms ...string) http.Handler {
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				claims := &shared.Claims{Subject: 9, Permissions: shared.NewPermissionSet(perms)}
				next.ServeHTTP(w, req.WithContext(shared.ContextWithClaims(req.Context(), claims)))
			})
		})
		r.Route("/users", h.MountRoutes)
		return r
	}

	rr := httptest.NewRecorder()
	newRouter(shared.PermUsersView).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/1/deactivate", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	newRouter(shared.PermUsersEdit).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/1/deactivate", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, repo.users[1].IsActive)

	rr = httptest.NewRecorder()
	newRouter(shared.PermUsersEdit).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/404/activate", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	newRouter(shared.PermUsersView).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"Ana"`)
}
