package cards

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khaeldev/card-issuance-service/internal/app/issuer"
	"github.com/khaeldev/card-issuance-service/internal/domain"
)

type mockIssuerService struct {
	mock.Mock
}

func (m *mockIssuerService) IssueCard(ctx context.Context, req *issuer.IssueCardRequest) (*issuer.IssueCardResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*issuer.IssueCardResponse), args.Error(1)
}

func newTestRouter(svc issuer.IssuerService) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, svc, zap.NewNop())
	return r
}

func requestBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"customer": map[string]any{
			"documentType":   "DNI",
			"documentNumber": "12345678",
			"fullName":       "Jane Doe",
			"age":            30,
			"email":          "jane@test.com",
		},
		"product": map[string]any{
			"type":          "VISA",
			"currency":      "PEN",
			"simulateError": false,
		},
	})
	require.NoError(t, err)
	return body
}

func TestIssueCardReturnsCreated(t *testing.T) {
	svc := new(mockIssuerService)
	svc.On("IssueCard", mock.Anything, mock.MatchedBy(func(req *issuer.IssueCardRequest) bool {
		return req.Customer.DocumentNumber == "12345678" && req.Product.Type == "VISA"
	})).Return(&issuer.IssueCardResponse{RequestID: "req-1", Status: "PENDING"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/cards/issuer", bytes.NewReader(requestBody(t)))
	resp := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)

	var res issuer.IssueCardResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
	require.Equal(t, "req-1", res.RequestID)
	require.Equal(t, "PENDING", res.Status)
	svc.AssertExpectations(t)
}

func TestIssueCardDuplicateReturnsConflict(t *testing.T) {
	svc := new(mockIssuerService)
	svc.On("IssueCard", mock.Anything, mock.Anything).Return(nil, domain.ErrDuplicateRequest).Once()

	req := httptest.NewRequest(http.MethodPost, "/cards/issuer", bytes.NewReader(requestBody(t)))
	resp := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(resp, req)

	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestIssueCardValidationReturnsBadRequest(t *testing.T) {
	svc := new(mockIssuerService)
	svc.On("IssueCard", mock.Anything, mock.Anything).
		Return(nil, errors.Join(domain.ErrInvalidRequest, errors.New("age must be >= 18"))).Once()

	req := httptest.NewRequest(http.MethodPost, "/cards/issuer", bytes.NewReader(requestBody(t)))
	resp := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIssueCardMalformedBodyReturnsBadRequest(t *testing.T) {
	svc := new(mockIssuerService)

	req := httptest.NewRequest(http.MethodPost, "/cards/issuer", bytes.NewReader([]byte("not json")))
	resp := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	svc.AssertNotCalled(t, "IssueCard", mock.Anything, mock.Anything)
}

func TestIssueCardInternalErrorReturns500(t *testing.T) {
	svc := new(mockIssuerService)
	svc.On("IssueCard", mock.Anything, mock.Anything).Return(nil, issuer.ErrEventPublish).Once()

	req := httptest.NewRequest(http.MethodPost, "/cards/issuer", bytes.NewReader(requestBody(t)))
	resp := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(resp, req)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestHealthCheck(t *testing.T) {
	svc := new(mockIssuerService)

	req := httptest.NewRequest(http.MethodGet, "/cards/health", nil)
	resp := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var res map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
	require.Contains(t, res["status"], "healthy")
}
