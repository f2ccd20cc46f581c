package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":           "report.pdf",
		"  notes.txt ":         "notes.txt",
		"../../etc/passwd.txt": "passwd.txt",
		`C:\Users\me\data.csv`: "data.csv",
		"we?ird:name.pdf":      "we_ird_name.pdf",
		".hidden.txt":          "hidden.txt",
		"..":                   "",
		"":                     "",
		"dir/":                 "dir",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFileName(in), in)
	}
}

func TestRespondWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondWithBadRequest(c, "Unsupported file type", gin.H{"allowed": []string{".pdf"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "bad_request", body.ErrorCode)
	assert.Equal(t, "Unsupported file type", body.Message)
	assert.NotNil(t, body.Details)
}

func TestRespondWithTooLargeAborts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondWithTooLarge(c, CodeFileTooLarge, "File size exceeds maximum limit", 2<<20, 0)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	var body struct {
		ErrorCode string         `json:"error_code"`
		Details   map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, CodeFileTooLarge, body.ErrorCode)
	assert.Equal(t, float64(2), body.Details["max_size_mb"])
	assert.NotContains(t, body.Details, "received")
}
