package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitmaya/pkg/config"
)

func TestContacts_RequiresAppID(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/contact", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Contacts(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContacts_StoreUnavailable(t *testing.T) {
	h := NewHandler(config.Config{}, nil, nil, nil, nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/contact?app_id=cli_x", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Contacts(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
