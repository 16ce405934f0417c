package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nala-server/bloom"
	"nala-server/models"
)

func jsonPost(body string) (*httptest.ResponseRecorder, *gin.Context) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return w, c
}

func TestBloomRestoreRejectsNegativeCounts(t *testing.T) {
	handler := BloomRestore(nil, bloom.NewEngine(nil, nil))

	w, c := jsonPost(`{
		"student_id": "s1",
		"module_id": "m1",
		"bloom_summary": {"1": {"Remember": -3}}
	}`)
	handler(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Negative count")
}

func TestBloomRestoreRejectsUnknownLevels(t *testing.T) {
	handler := BloomRestore(nil, bloom.NewEngine(nil, nil))

	w, c := jsonPost(`{
		"student_id": "s1",
		"module_id": "m1",
		"bloom_summary": {"1": {"remember": 2}}
	}`)
	handler(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid bloom level")
}

func TestBloomRestoreRequestBindsEmptySummary(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"explicit empty", `{"student_id": "s1", "module_id": "m1", "bloom_summary": {}}`},
		{"omitted", `{"student_id": "s1", "module_id": "m1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := jsonPost(tt.body)
			var req models.BloomRestoreRequest
			require.NoError(t, c.ShouldBindJSON(&req))
			assert.Empty(t, req.BloomSummary)
		})
	}
}
