package common_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-router/internal/common"
)

func TestJSONErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	common.JSONError(rec, http.StatusUnprocessableEntity, "NO_ELIGIBLE_PROVIDER", "no provider supports CHF", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "NO_ELIGIBLE_PROVIDER", body.Error.Code)
	require.Equal(t, "no provider supports CHF", body.Error.Message)
}

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("socket closed")
	appErr := common.NewAppError("UPSTREAM", "provider unreachable", http.StatusBadGateway, inner)
	require.ErrorIs(t, appErr, inner)
	require.True(t, common.IsAppError(appErr))
	require.False(t, common.IsAppError(inner))
	require.Equal(t, "socket closed", appErr.Error())
	require.Equal(t, "provider unreachable", (&common.AppError{Message: "provider unreachable"}).Error())
}

func TestAtoiDefault(t *testing.T) {
	require.Equal(t, 42, common.AtoiDefault("42", 7))
	require.Equal(t, 7, common.AtoiDefault("", 7))
	require.Equal(t, 7, common.AtoiDefault("many", 7))
}

func TestSha256HexStable(t *testing.T) {
	require.Equal(t, common.Sha256Hex("payload"), common.Sha256Hex("payload"))
	require.NotEqual(t, common.Sha256Hex("payload"), common.Sha256Hex("payload2"))
	require.Len(t, common.Sha256Hex(""), 64)
}
