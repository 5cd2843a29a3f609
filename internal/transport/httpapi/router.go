// Package httpapi реализует HTTP-транспорт сервиса продаж.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/service/catalog"
	"github.com/vladislavdragonenkov/autosales/internal/service/payment"
	"github.com/vladislavdragonenkov/autosales/internal/service/saga"
)

// Purchaser запускает сагу покупки.
type Purchaser interface {
	Initiate(ctx context.Context, req saga.PurchaseRequest) (saga.Submission, error)
}

// PaymentCallbacks принимает уведомления платёжного провайдера.
type PaymentCallbacks interface {
	Handle(ctx context.Context, req payment.CallbackRequest) (payment.CallbackResult, error)
}

// Catalog объединяет операции каталога и чтения состояния продаж.
type Catalog interface {
	CreateVehicle(ctx context.Context, req catalog.CreateVehicleRequest) (domain.Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, details domain.VehicleDetails) (domain.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (domain.Vehicle, error)
	ListSoldVehicles(ctx context.Context) ([]domain.Vehicle, error)
	CreateClient(ctx context.Context, req catalog.CreateClientRequest) (domain.Client, error)
	GetSale(ctx context.Context, id string) (domain.Sale, error)
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	GetExecution(ctx context.Context, handle string) (domain.Execution, error)
	SaleTimeline(ctx context.Context, saleID string) ([]domain.TimelineEvent, error)
}

// Server связывает HTTP-маршруты с сервисами.
type Server struct {
	purchases Purchaser
	callbacks PaymentCallbacks
	catalog   Catalog
	logger    *log.Entry
}

func NewServer(purchases Purchaser, callbacks PaymentCallbacks, catalog Catalog, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Server{
		purchases: purchases,
		callbacks: callbacks,
		catalog:   catalog,
		logger:    logger,
	}
}

// Router возвращает обработчик со всеми маршрутами API.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/purchases", s.createPurchase).Methods(http.MethodPost)
	r.HandleFunc("/payments/callback", s.paymentCallback).Methods(http.MethodPost)

	r.HandleFunc("/sales/{saleId}", s.getSale).Methods(http.MethodGet)
	r.HandleFunc("/sales/{saleId}/timeline", s.getTimeline).Methods(http.MethodGet)
	r.HandleFunc("/reservations/{reservationId}", s.getReservation).Methods(http.MethodGet)
	r.HandleFunc("/executions/{handle}", s.getExecution).Methods(http.MethodGet)

	r.HandleFunc("/vehicles", s.createVehicle).Methods(http.MethodPost)
	// /vehicles/sold регистрируется раньше /vehicles/{vehicleId}.
	r.HandleFunc("/vehicles/sold", s.listSoldVehicles).Methods(http.MethodGet)
	r.HandleFunc("/vehicles/{vehicleId}", s.getVehicle).Methods(http.MethodGet)
	r.HandleFunc("/vehicles/{vehicleId}", s.updateVehicle).Methods(http.MethodPut)
	r.HandleFunc("/clients", s.createClient).Methods(http.MethodPost)

	return s.logMiddleware(r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)

		entry := s.logger.WithFields(log.Fields{
			"method":      r.Method,
			"url":         r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"status":      rec.status,
			"duration":    time.Since(start),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	})
}
