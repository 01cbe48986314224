package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelopeOmitsEmptyDetails(t *testing.T) {
	body := BadRequest("invalid_mode", "bad mode").Envelope()
	inner := body["error"].(map[string]interface{})
	assert.Equal(t, "invalid_mode", inner["code"])
	assert.NotContains(t, inner, "details")
}

func TestStateConflictCarriesLatest(t *testing.T) {
	err := StateConflict(map[string]int{"version": 7})
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Equal(t, "state_conflict", err.Code)

	inner := err.Envelope()["error"].(map[string]interface{})
	details := inner["details"].(map[string]interface{})
	assert.Equal(t, map[string]int{"version": 7}, details["state"])
}

func TestInternalDefaultMessage(t *testing.T) {
	assert.Equal(t, "internal server error", Internal("").Message)
	assert.Equal(t, "unauthorized", Unauthorized("").Message)
}
