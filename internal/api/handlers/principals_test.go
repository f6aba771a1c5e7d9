package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymint/keymint/pkg/registry"
	"github.com/keymint/keymint/pkg/registry/models"
)

// fakeStore is an in-memory registry.Store for handler tests.
type fakeStore struct {
	principals map[string]*models.Principal
	provisions map[string][]*models.HostProvision
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		principals: make(map[string]*models.Principal),
		provisions: make(map[string][]*models.HostProvision),
	}
}

func (s *fakeStore) FindPrincipal(_ context.Context, name string) (*models.Principal, error) {
	p, ok := s.principals[name]
	if !ok {
		return nil, models.ErrPrincipalNotFound
	}
	return p, nil
}

func (s *fakeStore) ListPrincipals(_ context.Context) ([]*models.Principal, error) {
	names := make([]string, 0, len(s.principals))
	for name := range s.principals {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*models.Principal, 0, len(names))
	for _, name := range names {
		out = append(out, s.principals[name])
	}
	return out, nil
}

func (s *fakeStore) CreatePrincipal(_ context.Context, p *models.Principal) (string, error) {
	if _, ok := s.principals[p.Name]; ok {
		return "", models.ErrDuplicatePrincipal
	}
	if p.ID == "" {
		p.ID = "id-" + p.Name
	}
	s.principals[p.Name] = p
	return p.ID, nil
}

func (s *fakeStore) UpdatePrincipal(_ context.Context, p *models.Principal) error {
	if _, ok := s.principals[p.Name]; !ok {
		return models.ErrPrincipalNotFound
	}
	s.principals[p.Name] = p
	return nil
}

func (s *fakeStore) UpdateCachedKeytabPath(_ context.Context, name, path string) error {
	p, ok := s.principals[name]
	if !ok {
		return models.ErrPrincipalNotFound
	}
	p.CachedKeytabPath = path
	return nil
}

func (s *fakeStore) DeletePrincipal(_ context.Context, name string) error {
	if _, ok := s.principals[name]; !ok {
		return models.ErrPrincipalNotFound
	}
	delete(s.principals, name)
	delete(s.provisions, name)
	return nil
}

func (s *fakeStore) PrincipalProvisionedOnHost(_ context.Context, principal, host string) (bool, error) {
	for _, p := range s.provisions[principal] {
		if p.Host == host {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) MarkProvisioned(_ context.Context, provision *models.HostProvision) error {
	for _, p := range s.provisions[provision.PrincipalName] {
		if p.Host == provision.Host {
			p.KeytabPath = provision.KeytabPath
			return nil
		}
	}
	s.provisions[provision.PrincipalName] = append(s.provisions[provision.PrincipalName], provision)
	return nil
}

func (s *fakeStore) ListProvisions(_ context.Context, principal string) ([]*models.HostProvision, error) {
	if _, ok := s.principals[principal]; !ok {
		return nil, models.ErrPrincipalNotFound
	}
	return s.provisions[principal], nil
}

func (s *fakeStore) RemoveProvision(_ context.Context, principal, host string) error {
	list := s.provisions[principal]
	for i, p := range list {
		if p.Host == host {
			s.provisions[principal] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return models.ErrProvisionNotFound
}

func (s *fakeStore) Healthcheck(context.Context) error { return nil }

func (s *fakeStore) Close() error { return nil }

var _ registry.Store = (*fakeStore)(nil)

// principalsRouter mounts the handler the way the API router does.
func principalsRouter(store registry.Store) http.Handler {
	h := NewPrincipalsHandler(store)
	r := chi.NewRouter()
	r.Route("/api/v1/principals", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{name}", h.Get)
		r.Delete("/{name}", h.Delete)
		r.Get("/{name}/provisions", h.ListProvisions)
		r.Delete("/{name}/provisions/{host}", h.RemoveProvision)
	})
	return r
}

func TestPrincipalsCreate(t *testing.T) {
	router := principalsRouter(newFakeStore())

	body := bytes.NewBufferString(`{"name": "hdfs@EXAMPLE.COM", "is_service": false}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/principals", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var created PrincipalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "hdfs@EXAMPLE.COM", created.Name)
	assert.False(t, created.IsService)
	assert.NotEmpty(t, created.ID)
}

func TestPrincipalsCreateDefaultsToService(t *testing.T) {
	store := newFakeStore()
	router := principalsRouter(store)

	body := bytes.NewBufferString(`{"name": "nn/host1@EXAMPLE.COM"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/principals", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, store.principals["nn/host1@EXAMPLE.COM"].IsService)
}

func TestPrincipalsCreateConflict(t *testing.T) {
	store := newFakeStore()
	_, err := store.CreatePrincipal(context.Background(), &models.Principal{Name: "hdfs@EXAMPLE.COM"})
	require.NoError(t, err)
	router := principalsRouter(store)

	body := bytes.NewBufferString(`{"name": "hdfs@EXAMPLE.COM"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/principals", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ContentTypeProblemJSON, rec.Header().Get("Content-Type"))
}

func TestPrincipalsCreateRejectsEmptyName(t *testing.T) {
	router := principalsRouter(newFakeStore())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/principals", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrincipalsGetEscapedName(t *testing.T) {
	store := newFakeStore()
	_, err := store.CreatePrincipal(context.Background(), &models.Principal{Name: "nn/host1@EXAMPLE.COM"})
	require.NoError(t, err)
	router := principalsRouter(store)

	// Multi-component principal names travel percent-encoded in the path.
	path := "/api/v1/principals/" + url.PathEscape("nn/host1@EXAMPLE.COM")
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got PrincipalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "nn/host1@EXAMPLE.COM", got.Name)
}

func TestPrincipalsGetNotFound(t *testing.T) {
	router := principalsRouter(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/principals/ghost%40EXAMPLE.COM", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrincipalsList(t *testing.T) {
	store := newFakeStore()
	for _, name := range []string{"yarn@EXAMPLE.COM", "hdfs@EXAMPLE.COM"} {
		_, err := store.CreatePrincipal(context.Background(), &models.Principal{Name: name})
		require.NoError(t, err)
	}
	router := principalsRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/principals", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []PrincipalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "hdfs@EXAMPLE.COM", got[0].Name)
	assert.Equal(t, "yarn@EXAMPLE.COM", got[1].Name)
}

func TestPrincipalsDelete(t *testing.T) {
	store := newFakeStore()
	_, err := store.CreatePrincipal(context.Background(), &models.Principal{Name: "hdfs@EXAMPLE.COM"})
	require.NoError(t, err)
	router := principalsRouter(store)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/principals/hdfs%40EXAMPLE.COM", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.principals)

	// Deleting again reports not found.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/principals/hdfs%40EXAMPLE.COM", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrincipalsProvisions(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	_, err := store.CreatePrincipal(ctx, &models.Principal{Name: "hdfs@EXAMPLE.COM"})
	require.NoError(t, err)
	require.NoError(t, store.MarkProvisioned(ctx, &models.HostProvision{
		PrincipalName: "hdfs@EXAMPLE.COM",
		Host:          "worker-1",
		KeytabPath:    "/etc/security/keytabs/hdfs.keytab",
	}))
	router := principalsRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/principals/hdfs%40EXAMPLE.COM/provisions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []ProvisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "worker-1", got[0].Host)
	assert.Equal(t, "/etc/security/keytabs/hdfs.keytab", got[0].KeytabPath)

	// Remove the provision and verify the taxonomy on a second attempt.
	del := httptest.NewRequest(http.MethodDelete, "/api/v1/principals/hdfs%40EXAMPLE.COM/provisions/worker-1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, del)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/principals/hdfs%40EXAMPLE.COM/provisions/worker-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
