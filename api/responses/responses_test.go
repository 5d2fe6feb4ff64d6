package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/types"
)

func decodeErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorEnvelope {
	t.Helper()
	var envelope types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestWriteSuccess_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"slug": "tecno-store"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var envelope struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "tecno-store", envelope.Data["slug"])
}

func TestWriteError_PassesThroughClientMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for SKU-1"))

	require.Equal(t, http.StatusConflict, rec.Code)
	envelope := decodeErrorEnvelope(t, rec)
	assert.Equal(t, string(pkgerrors.CodeInsufficientStock), envelope.Error.Code)
	assert.Equal(t, "insufficient stock for SKU-1", envelope.Error.Message)
}

func TestWriteError_MasksInternalMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, pkgerrors.New(pkgerrors.CodeInternal, "pq: connection refused on orders insert"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	envelope := decodeErrorEnvelope(t, rec)
	assert.Equal(t, string(pkgerrors.CodeInternal), envelope.Error.Code)
	assert.NotContains(t, envelope.Error.Message, "pq:")
	assert.NotContains(t, envelope.Error.Message, "orders insert")
}

func TestWriteError_WrapsUntypedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, errors.New("raw failure"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	envelope := decodeErrorEnvelope(t, rec)
	assert.Equal(t, string(pkgerrors.CodeInternal), envelope.Error.Code)
}

func TestWriteError_SignalsRetryability(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "square timed out"))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	envelope := decodeErrorEnvelope(t, rec)
	assert.True(t, envelope.Error.Retryable)

	rec2 := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec2, pkgerrors.New(pkgerrors.CodePaymentFailed, "card declined"))

	envelope2 := decodeErrorEnvelope(t, rec2)
	assert.False(t, envelope2.Error.Retryable)
}

func TestWriteError_DetailsOnlyWhereAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	withDetails := pkgerrors.New(pkgerrors.CodeIdempotency, "key already used").
		WithDetails(map[string]any{"scope": "checkout"})
	WriteError(context.Background(), nil, rec, withDetails)

	require.Equal(t, http.StatusConflict, rec.Code)
	envelope := decodeErrorEnvelope(t, rec)
	require.NotNil(t, envelope.Error.Details)

	rec2 := httptest.NewRecorder()
	leaky := pkgerrors.New(pkgerrors.CodeInternal, "boom").
		WithDetails(map[string]any{"dsn": "postgres://secret"})
	WriteError(context.Background(), nil, rec2, leaky)

	envelope2 := decodeErrorEnvelope(t, rec2)
	assert.Nil(t, envelope2.Error.Details)
}
