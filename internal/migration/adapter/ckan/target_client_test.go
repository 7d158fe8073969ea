package ckan

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ckan-migrate/internal/migration/domain/model"
	"ckan-migrate/internal/migration/domain/repository"
	"ckan-migrate/internal/shared/errors"
	"ckan-migrate/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTarget(t *testing.T, handler http.Handler) *TargetClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTargetClient(NewClient(srv.URL, testOptions()), logger.NewLogger())
}

func stringOpener(content string) repository.FileOpener {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}
}

func TestTargetClient_CheckInstance(t *testing.T) {
	target := newTestTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/3/action/status_show", r.URL.Path)
		writeResult(w, map[string]string{"ckan_version": "2.11.2"})
	}))

	version, err := target.CheckInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.11.2", version)
}

func TestTargetClient_EnsureOrganizationCreates(t *testing.T) {
	var createPayload map[string]interface{}
	target := newTestTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/3/action/organization_show":
			w.WriteHeader(http.StatusNotFound)
		case "/api/3/action/organization_create":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createPayload))
			writeResult(w, map[string]string{"id": "target-org-1", "name": createPayload["name"].(string)})
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))

	org := &model.Organization{ID: "src-org-1", Name: "My Org!", Title: "My Org"}
	result, err := target.EnsureOrganization(context.Background(), org)
	require.NoError(t, err)
	assert.Equal(t, "target-org-1", result.TargetID)
	assert.Equal(t, model.StatusCreated, result.Status)

	// The payload carries the sanitized name and no source identifiers.
	assert.Equal(t, "my_org_", createPayload["name"])
	assert.Equal(t, "My Org", createPayload["title"])
	assert.NotContains(t, createPayload, "id")
}

func TestTargetClient_EnsureOrganizationMatchesExisting(t *testing.T) {
	target := newTestTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/3/action/organization_show":
			writeResult(w, map[string]string{"id": "existing-org", "name": "my-org"})
		default:
			t.Errorf("create must not be called when the name already resolves, got %s", r.URL.Path)
		}
	}))

	result, err := target.EnsureOrganization(context.Background(), &model.Organization{ID: "src", Name: "my-org"})
	require.NoError(t, err)
	assert.Equal(t, "existing-org", result.TargetID)
	assert.Equal(t, model.StatusMatchedExisting, result.Status)
}

func TestTargetClient_EnsureOrganizationResolvesCreateConflict(t *testing.T) {
	var probes int
	target := newTestTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/3/action/organization_show":
			probes++
			if probes == 1 {
				// Not there yet when we first look.
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeResult(w, map[string]string{"id": "winner-org", "name": "my-org"})
		case "/api/3/action/organization_create":
			// Another writer got there between probe and create.
			w.WriteHeader(http.StatusConflict)
		}
	}))

	result, err := target.EnsureOrganization(context.Background(), &model.Organization{ID: "src", Name: "my-org"})
	require.NoError(t, err)
	assert.Equal(t, "winner-org", result.TargetID)
	assert.Equal(t, model.StatusMatchedExisting, result.Status)
}

func TestTargetClient_EnsureDataset(t *testing.T) {
	var createPayload map[string]interface{}
	target := newTestTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/3/action/package_show":
			w.WriteHeader(http.StatusNotFound)
		case "/api/3/action/package_create":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createPayload))
			writeResult(w, map[string]string{"id": "target-ds-1"})
		}
	}))

	ds := &model.Dataset{ID: "src-ds", Name: "Demo Dataset", Title: "Demo", OwnerOrg: "src-org"}
	result, err := target.EnsureDataset(context.Background(), ds, "target-org-1")
	require.NoError(t, err)
	assert.Equal(t, "target-ds-1", result.TargetID)
	assert.Equal(t, model.StatusCreated, result.Status)

	// Ownership points at the target org, never the source one.
	assert.Equal(t, "target-org-1", createPayload["owner_org"])
	assert.NotContains(t, createPayload, "resources")
	assert.NotContains(t, createPayload, "id")
}

func TestTargetClient_EnsureDatasetWithoutOwner(t *testing.T) {
	var createPayload map[string]interface{}
	target := newTestTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/3/action/package_show":
			w.WriteHeader(http.StatusNotFound)
		case "/api/3/action/package_create":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createPayload))
			writeResult(w, map[string]string{"id": "target-ds-2"})
		}
	}))

	_, err := target.EnsureDataset(context.Background(), &model.Dataset{ID: "src", Name: "loose"}, "")
	require.NoError(t, err)
	assert.NotContains(t, createPayload, "owner_org")
}

func TestTargetClient_AttachResourceUploadsMultipart(t *testing.T) {
	target := newTestTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/3/action/resource_create", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "target-ds-1", r.FormValue("package_id"))
		assert.Equal(t, "data.csv", r.FormValue("name"))
		assert.Equal(t, "CSV", r.FormValue("format"))

		file, header, err := r.FormFile("upload")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "data.csv", header.Filename)

		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "a,b\n1,2\n", string(content))

		writeResult(w, map[string]string{"id": "target-res-1"})
	}))

	res := &model.Resource{ID: "src-res", Name: "data.csv", URL: "http://old.example.org/data.csv", Format: "CSV"}
	result, err := target.AttachResource(context.Background(), res, "target-ds-1", stringOpener("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, "target-res-1", result.TargetID)
	assert.Equal(t, model.StatusCreated, result.Status)
}

func TestTargetClient_AttachResourceResolvesConflict(t *testing.T) {
	target := newTestTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/3/action/resource_create":
			w.WriteHeader(http.StatusConflict)
		case "/api/3/action/package_show":
			writeResult(w, map[string]interface{}{
				"id": "target-ds-1",
				"resources": []map[string]string{
					{"id": "other-res", "name": "other.csv"},
					{"id": "existing-res", "name": "data.csv"},
				},
			})
		}
	}))

	res := &model.Resource{ID: "src-res", Name: "data.csv"}
	result, err := target.AttachResource(context.Background(), res, "target-ds-1", stringOpener("x"))
	require.NoError(t, err)
	assert.Equal(t, "existing-res", result.TargetID)
	assert.Equal(t, model.StatusMatchedExisting, result.Status)
}

func TestTargetClient_AttachResourceFallsBackToLink(t *testing.T) {
	var linkPayload map[string]interface{}
	target := newTestTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/3/action/resource_create", r.URL.Path)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			// This target has no upload endpoint.
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&linkPayload))
		writeResult(w, map[string]string{"id": "link-res-1"})
	}))

	res := &model.Resource{ID: "src-res", Name: "data.csv", URL: "http://old.example.org/data.csv"}
	result, err := target.AttachResource(context.Background(), res, "target-ds-1", stringOpener("x"))
	require.NoError(t, err)
	assert.Equal(t, "link-res-1", result.TargetID)
	assert.Equal(t, model.StatusCreated, result.Status)

	assert.Equal(t, "target-ds-1", linkPayload["package_id"])
	assert.Equal(t, "http://old.example.org/data.csv", linkPayload["url"])
}

func TestTargetClient_AttachResourceCompatibilityExhausted(t *testing.T) {
	target := newTestTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Both the upload form and the link-only body are rejected.
		w.WriteHeader(http.StatusNotFound)
	}))

	res := &model.Resource{ID: "src-res", Name: "data.csv", URL: "http://old.example.org/data.csv"}
	_, err := target.AttachResource(context.Background(), res, "target-ds-1", stringOpener("x"))
	require.Error(t, err)
	assert.True(t, errors.IsCompatibility(err))
}
