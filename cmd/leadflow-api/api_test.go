package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/leadflow/pkg/persistence/file"
)

func TestAPIServesRootAndHealth(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	api := NewAPI(slog.New(slog.NewTextHandler(io.Discard, nil)), store, nil)
	app := api.App()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Leadflow API", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
