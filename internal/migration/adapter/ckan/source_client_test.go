package ckan

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"ckan-migrate/internal/migration/domain/model"
	"ckan-migrate/internal/migration/domain/repository"
	"ckan-migrate/internal/shared/errors"
	"ckan-migrate/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, handler http.Handler, pageSize int) (*SourceClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, testOptions())
	return NewSourceClient(client, pageSize, logger.NewLogger()), srv
}

func TestSourceClient_ListOrganizations(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/3/action/organization_list", r.URL.Path)
		writeResult(w, []string{"org-a", "org-b", "org-c"})
	}), 0)

	names, err := source.ListOrganizations(context.Background(), repository.EntityFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"org-a", "org-b", "org-c"}, names)
}

func TestSourceClient_FilterSkipsListing(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s with an explicit filter", r.URL.Path)
	}), 0)

	filter := repository.EntityFilter{Names: []string{"only-this"}}

	names, err := source.ListOrganizations(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, []string{"only-this"}, names)

	names, err = source.ListDatasets(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, []string{"only-this"}, names)
}

func TestSourceClient_ListDatasetsPaginates(t *testing.T) {
	// 5 datasets at page size 2 means three pages, the last one short.
	all := []string{"d1", "d2", "d3", "d4", "d5"}

	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/3/action/package_list", r.URL.Path)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		require.Equal(t, 2, limit)

		end := offset + limit
		if offset > len(all) {
			offset = len(all)
		}
		if end > len(all) {
			end = len(all)
		}
		writeResult(w, all[offset:end])
	}), 2)

	names, err := source.ListDatasets(context.Background(), repository.EntityFilter{})
	require.NoError(t, err)
	assert.Equal(t, all, names)
}

func TestSourceClient_ListDatasetsForOrganization(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/3/action/organization_show", r.URL.Path)
		assert.Equal(t, "org-a", r.URL.Query().Get("id"))
		assert.Equal(t, "true", r.URL.Query().Get("include_datasets"))
		writeResult(w, map[string]interface{}{
			"id":       "org-a",
			"packages": []map[string]string{{"id": "d1"}, {"id": "d2"}},
		})
	}), 0)

	ids, err := source.ListDatasetsForOrganization(context.Background(), "org-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, ids)
}

func TestSourceClient_FetchDataset(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/3/action/package_show", r.URL.Path)
		writeResult(w, map[string]interface{}{
			"id":        "d1",
			"name":      "demo-dataset",
			"owner_org": "org-a",
			"resources": []map[string]interface{}{
				{"id": "r1", "name": "data.csv", "url": "http://example.org/data.csv", "format": "CSV"},
			},
		})
	}), 0)

	ds, err := source.FetchDataset(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "demo-dataset", ds.Name)
	assert.Equal(t, "org-a", ds.OwnerOrg)
	require.Len(t, ds.Resources, 1)
	assert.Equal(t, "r1", ds.Resources[0].ID)
}

func TestSourceClient_FetchMissingOrganization(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), 0)

	_, err := source.FetchOrganization(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestSourceClient_FetchResourceFile(t *testing.T) {
	source, srv := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("csv,content"))
	}), 0)

	res := &model.Resource{ID: "r1", URL: srv.URL + "/download/data.csv"}
	body, err := source.FetchResourceFile(context.Background(), res)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "csv,content", string(data))
}

func TestSourceClient_FetchResourceFileWithoutURL(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a URL-less resource")
	}), 0)

	_, err := source.FetchResourceFile(context.Background(), &model.Resource{ID: "r1"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}
