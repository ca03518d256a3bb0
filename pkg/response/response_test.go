package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ksred/klear-journal/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func run(method string, data interface{}, err error) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", nil)
	Handle(c, data, err)
	return w
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"get success", http.MethodGet, nil, http.StatusOK, ""},
		{"post success", http.MethodPost, nil, http.StatusCreated, ""},
		{"not found", http.MethodGet, fmt.Errorf("load trade: %w", gorm.ErrRecordNotFound), http.StatusNotFound, ErrCodeNotFound},
		{"duplicate", http.MethodPost, gorm.ErrDuplicatedKey, http.StatusConflict, ErrCodeDuplicateResource},
		{"validation", http.MethodPost, validation.Errors{"price": "bad"}, http.StatusBadRequest, ErrCodeValidationFailed},
		{"unexpected", http.MethodGet, errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := run(tt.method, map[string]string{"ok": "yes"}, tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			if tt.wantCode == "" {
				assert.True(t, resp.Success)
				return
			}
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestValidationFieldsAreReturned(t *testing.T) {
	w := run(http.MethodPost, nil, validation.Errors{"exit_time": "Exit time cannot be earlier than entry time."})

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Exit time cannot be earlier than entry time.", resp.Error.Fields["exit_time"])
}

func TestUnexpectedErrorIsHidden(t *testing.T) {
	w := run(http.MethodGet, nil, errors.New("database password is hunter2"))
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestRejectedKeepsData(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	Rejected(c, map[string]int{"imported": 0}, "nothing saved")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp struct {
		Success bool           `json:"success"`
		Data    map[string]int `json:"data"`
		Error   Error          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, 0, resp.Data["imported"])
	assert.Equal(t, ErrCodeValidationFailed, resp.Error.Code)
}
