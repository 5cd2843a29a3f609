package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/service/catalog"
	"github.com/vladislavdragonenkov/autosales/internal/service/payment"
	"github.com/vladislavdragonenkov/autosales/internal/service/saga"
	"github.com/vladislavdragonenkov/autosales/internal/storage/memory"
)

type stubPurchaser struct {
	got saga.PurchaseRequest
	err error
}

func (s *stubPurchaser) Initiate(_ context.Context, req saga.PurchaseRequest) (saga.Submission, error) {
	s.got = req
	if s.err != nil {
		return saga.Submission{}, s.err
	}
	return saga.Submission{SaleID: "s-1", ExecutionHandle: "sale-s1"}, nil
}

type testAPI struct {
	handler   http.Handler
	purchaser *stubPurchaser
	repos     catalog.Repositories
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()

	logger := log.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("component", "http-test")

	repos := catalog.Repositories{
		Vehicles:     memory.NewVehicleRepository(),
		Reservations: memory.NewReservationRepository(),
		Sales:        memory.NewSaleRepository(),
		Clients:      memory.NewClientRepository(),
		Executions:   memory.NewExecutionRepository(),
		Timeline:     memory.NewTimelineRepository(),
	}
	purchaser := &stubPurchaser{}
	callbacks := payment.NewCallbackHandler(repos.Sales, repos.Timeline, nil, entry)
	server := NewServer(purchaser, callbacks, catalog.NewService(repos, entry), entry)

	return testAPI{handler: server.Router(), purchaser: purchaser, repos: repos}
}

func (a testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestCreatePurchase(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/purchases",
		`{"vehicleId":"v1","clientId":"c1","reservationTtlMinutes":"30","maxPaymentChecks":3,"paymentApproved":true}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	body := decodeBody[map[string]string](t, w)
	require.Equal(t, "s-1", body["saleId"])
	require.Equal(t, "sale-s1", body["executionHandle"])
	require.NotEmpty(t, body["message"])

	require.Equal(t, "v1", api.purchaser.got.VehicleID)
	require.Equal(t, "30", api.purchaser.got.ReservationTTLMinutes)
	require.Equal(t, 3, api.purchaser.got.MaxPaymentChecks)
	require.NotNil(t, api.purchaser.got.PaymentApproved)
	require.True(t, *api.purchaser.got.PaymentApproved)
}

func TestCreatePurchase_StringFlags(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/purchases",
		`{"vehicleId":"v1","clientId":"c1","maxPaymentChecks":"3","paymentApproved":"true"}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, 3, api.purchaser.got.MaxPaymentChecks)
	require.NotNil(t, api.purchaser.got.PaymentApproved)
	require.True(t, *api.purchaser.got.PaymentApproved)

	w = api.do(t, http.MethodPost, "/purchases",
		`{"vehicleId":"v1","clientId":"c1","maxPaymentChecks":"many","paymentApproved":"maybe"}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Zero(t, api.purchaser.got.MaxPaymentChecks)
	require.Nil(t, api.purchaser.got.PaymentApproved)
}

func TestCreatePurchase_Errors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		body string
		code int
	}{
		{name: "malformed json", body: `{"vehicleId":`, code: http.StatusBadRequest},
		{name: "invalid input", body: `{}`, err: domain.ErrVehicleIDRequired, code: http.StatusBadRequest},
		{name: "shutting down", body: `{"vehicleId":"v1","clientId":"c1"}`, err: saga.ErrInitiatorClosed, code: http.StatusServiceUnavailable},
		{name: "internal", body: `{"vehicleId":"v1","clientId":"c1"}`, err: errors.New("disk full"), code: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI(t)
			api.purchaser.err = tc.err

			w := api.do(t, http.MethodPost, "/purchases", tc.body)
			require.Equal(t, tc.code, w.Code)

			body := decodeBody[errorBody](t, w)
			require.Equal(t, tc.code, body.Code)
			if tc.code == http.StatusInternalServerError {
				require.Equal(t, "internal error", body.Error)
			}
		})
	}
}

func TestRawText(t *testing.T) {
	cases := map[string]string{
		``:        "",
		`null`:    "",
		`30`:      "30",
		`"45"`:    "45",
		`"abc"`:   "abc",
		` -1 `:    "-1",
		`12.5`:    "12.5",
		`"  7  "`: "  7  ",
	}
	for raw, want := range cases {
		require.Equal(t, want, rawText(json.RawMessage(raw)), "raw %q", raw)
	}
}

func TestRawIntAndBool(t *testing.T) {
	require.Equal(t, 4, rawInt(json.RawMessage(`4`)))
	require.Equal(t, 4, rawInt(json.RawMessage(`" 4 "`)))
	require.Zero(t, rawInt(json.RawMessage(`null`)))
	require.Zero(t, rawInt(json.RawMessage(`2.5`)))

	require.Nil(t, rawBool(nil))
	require.Nil(t, rawBool(json.RawMessage(`"yes"`)))
	for _, raw := range []string{`false`, `"false"`, `"0"`} {
		v := rawBool(json.RawMessage(raw))
		require.NotNil(t, v, "raw %q", raw)
		require.False(t, *v, "raw %q", raw)
	}
}

func TestPaymentCallback(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, api.repos.Sales.Put(ctx, domain.Sale{
		ID:            "s-1",
		Status:        domain.SaleStatusReserved,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     time.Now().UTC(),
	}))

	w := api.do(t, http.MethodPost, "/payments/callback", `{"saleId":"s-1","paymentStatus":"PAID","providerReference":"psp-9"}`)
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeBody[payment.CallbackResult](t, w)
	require.Equal(t, domain.SaleStatusPaid, result.Status)
	require.Equal(t, "psp-9", result.ProviderReference)

	w = api.do(t, http.MethodGet, "/sales/s-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	sale := decodeBody[domain.Sale](t, w)
	require.Equal(t, domain.PaymentStatusPaid, sale.PaymentStatus)
	require.NotNil(t, sale.PaidAt)

	w = api.do(t, http.MethodGet, "/sales/s-1/timeline", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeBody[[]domain.TimelineEvent](t, w), 1)

	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/payments/callback", `{"saleId":"missing","paymentStatus":"FAILED"}`).Code)
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/payments/callback", `{"saleId":"s-1","paymentStatus":"PENDING"}`).Code)
}

func TestVehicleLifecycle(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	w := api.do(t, http.MethodPost, "/vehicles", `{"brand":"Toyota","model":"Corolla","year":2024,"color":"white","price":20000}`)
	require.Equal(t, http.StatusCreated, w.Code)
	vehicle := decodeBody[domain.Vehicle](t, w)
	require.Equal(t, domain.VehicleStatusAvailable, vehicle.Status)

	w = api.do(t, http.MethodPut, "/vehicles/"+vehicle.ID, `{"color":"red","price":21000}`)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeBody[domain.Vehicle](t, w)
	require.Equal(t, "red", updated.Color)
	require.EqualValues(t, 21000, updated.Price)

	now := time.Now().UTC()
	require.NoError(t, api.repos.Vehicles.Reserve(ctx, vehicle.ID, domain.VehicleReservation{
		SaleID: "s-1", ClientID: "c1", ReservationID: "r-1", ReservedAt: now,
	}))
	require.NoError(t, api.repos.Vehicles.MarkSold(ctx, vehicle.ID, "s-1", "c1", now))

	require.Equal(t, http.StatusConflict, api.do(t, http.MethodPut, "/vehicles/"+vehicle.ID, `{"color":"blue"}`).Code)

	w = api.do(t, http.MethodGet, "/vehicles/sold", "")
	require.Equal(t, http.StatusOK, w.Code)
	sold := decodeBody[[]domain.Vehicle](t, w)
	require.Len(t, sold, 1)
	require.Equal(t, vehicle.ID, sold[0].ID)

	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/vehicles", `{"brand":"","price":0}`).Code)
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodPut, "/vehicles/missing", `{"color":"blue"}`).Code)
}

func TestSoldVehiclesEmptyList(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/vehicles/sold", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestCreateClient(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/clients",
		`{"fullName":"Anna Petrova","email":"Anna@Example.com","documentNumber":"12 34-567","paymentKey":"pk-1","address":"Main st 1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	client := decodeBody[map[string]any](t, w)
	require.Equal(t, "ACTIVE", client["status"])
	require.NotContains(t, client, "paymentKey")

	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/clients", `{"fullName":"x"}`).Code)
}

func TestReadEndpoints_NotFound(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{
		"/sales/missing",
		"/sales/missing/timeline",
		"/reservations/missing",
		"/executions/sale-missing",
		"/vehicles/missing",
		"/unknown",
	} {
		require.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, path, "").Code, path)
	}
	require.Equal(t, http.StatusMethodNotAllowed, api.do(t, http.MethodDelete, "/clients", "").Code)
}

func TestGetExecution(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.repos.Executions.Save(context.Background(), domain.Execution{
		Handle: "sale-s1",
		SaleID: "s-1",
		Status: domain.ExecutionStatusRunning,
	}))

	w := api.do(t, http.MethodGet, "/executions/sale-s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	exec := decodeBody[domain.Execution](t, w)
	require.Equal(t, domain.ExecutionStatusRunning, exec.Status)
}
