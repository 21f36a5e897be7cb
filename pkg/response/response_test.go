package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sitecms-api/pkg/errors"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSONEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	JSON(c, http.StatusOK, gin.H{"id": "abc"}, "archived")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "archived", body["message"])
	assert.Equal(t, "abc", body["data"].(map[string]interface{})["id"])
	assert.NotContains(t, body, "error")
}

func TestErrorHidesCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, appErrors.Storage(errors.New("open /srv/uploads/replies/x: permission denied")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "STORAGE_ERROR", body["code"])
	assert.Equal(t, appErrors.ErrStorage.Message, body["error"])
	assert.NotContains(t, w.Body.String(), "/srv/uploads")
	require.Len(t, c.Errors, 1)
	assert.ErrorIs(t, c.Errors.Last().Err, appErrors.ErrStorage)
	assert.Contains(t, c.Errors.Last().Error(), "permission denied")
}

func TestErrorFallsBackToInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.NotContains(t, w.Body.String(), "boom")
}
