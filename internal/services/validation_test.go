package services

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	type request struct {
		AssetTypeID int64  `validate:"required,gt=0"`
		Key         string `validate:"omitempty,max=8"`
	}

	t.Run("valid struct", func(t *testing.T) {
		assert.NoError(t, vh.ValidateStruct(&request{AssetTypeID: 1}))
	})

	t.Run("missing required field", func(t *testing.T) {
		assert.Error(t, vh.ValidateStruct(&request{}))
	})

	t.Run("field over limit", func(t *testing.T) {
		assert.Error(t, vh.ValidateStruct(&request{AssetTypeID: 1, Key: "way-too-long"}))
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "something failed", 400, nil)

		assert.Equal(t, 400, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "something failed", resp.Error)
		assert.Empty(t, resp.Details)
	})

	t.Run("validator error carries field details", func(t *testing.T) {
		vh := NewValidationHelper()
		type request struct {
			AssetTypeID int64 `validate:"required"`
		}
		err := vh.ValidateStruct(&request{})

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", 400, err)

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Details, "AssetTypeID")
	})
}
