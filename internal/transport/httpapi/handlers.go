package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/service/catalog"
	"github.com/vladislavdragonenkov/autosales/internal/service/payment"
	"github.com/vladislavdragonenkov/autosales/internal/service/saga"
)

const maxBodyBytes = 1 << 20

// purchaseBody — тело POST /purchases. Числовые и булевы поля принимаются
// и литералом, и строкой; нераспознанное значение означает умолчание.
type purchaseBody struct {
	VehicleID             string          `json:"vehicleId"`
	ClientID              string          `json:"clientId"`
	BuyerID               string          `json:"buyerId"`
	CustomerCancelled     bool            `json:"customerCancelled"`
	ReservationTTLMinutes json.RawMessage `json:"reservationTtlMinutes"`
	MaxPaymentChecks      json.RawMessage `json:"maxPaymentChecks"`
	PaymentApproved       json.RawMessage `json:"paymentApproved"`
}

type purchaseResponse struct {
	saga.Submission
	Message string `json:"message"`
}

func (s *Server) createPurchase(w http.ResponseWriter, r *http.Request) {
	var body purchaseBody
	if !s.decode(w, r, &body) {
		return
	}

	submission, err := s.purchases.Initiate(r.Context(), saga.PurchaseRequest{
		VehicleID:             body.VehicleID,
		ClientID:              body.ClientID,
		BuyerID:               body.BuyerID,
		CustomerCancelled:     body.CustomerCancelled,
		ReservationTTLMinutes: rawText(body.ReservationTTLMinutes),
		MaxPaymentChecks:      rawInt(body.MaxPaymentChecks),
		PaymentApproved:       rawBool(body.PaymentApproved),
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, purchaseResponse{
		Submission: submission,
		Message:    "purchase saga started",
	})
}

// rawText превращает JSON-значение в строку: строковый литерал раскавычивается,
// число и прочее передаются как есть, null становится пустой строкой.
func rawText(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		return unquoted
	}
	return text
}

// rawInt возвращает 0 для пустого или нечислового значения.
func rawInt(raw json.RawMessage) int {
	n, err := strconv.Atoi(strings.TrimSpace(rawText(raw)))
	if err != nil {
		return 0
	}
	return n
}

// rawBool возвращает nil, если флаг не задан или не распознан.
func rawBool(raw json.RawMessage) *bool {
	v, err := strconv.ParseBool(strings.TrimSpace(rawText(raw)))
	if err != nil {
		return nil
	}
	return &v
}

func (s *Server) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var req payment.CallbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.callbacks.Handle(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getSale(w http.ResponseWriter, r *http.Request) {
	sale, err := s.catalog.GetSale(r.Context(), mux.Vars(r)["saleId"])
	s.respond(w, sale, err)
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := s.catalog.SaleTimeline(r.Context(), mux.Vars(r)["saleId"])
	if events == nil {
		events = []domain.TimelineEvent{}
	}
	s.respond(w, events, err)
}

func (s *Server) getReservation(w http.ResponseWriter, r *http.Request) {
	reservation, err := s.catalog.GetReservation(r.Context(), mux.Vars(r)["reservationId"])
	s.respond(w, reservation, err)
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.catalog.GetExecution(r.Context(), mux.Vars(r)["handle"])
	s.respond(w, exec, err)
}

func (s *Server) createVehicle(w http.ResponseWriter, r *http.Request) {
	var req catalog.CreateVehicleRequest
	if !s.decode(w, r, &req) {
		return
	}
	vehicle, err := s.catalog.CreateVehicle(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vehicle)
}

func (s *Server) getVehicle(w http.ResponseWriter, r *http.Request) {
	vehicle, err := s.catalog.GetVehicle(r.Context(), mux.Vars(r)["vehicleId"])
	s.respond(w, vehicle, err)
}

func (s *Server) updateVehicle(w http.ResponseWriter, r *http.Request) {
	var details domain.VehicleDetails
	if !s.decode(w, r, &details) {
		return
	}
	vehicle, err := s.catalog.UpdateVehicle(r.Context(), mux.Vars(r)["vehicleId"], details)
	s.respond(w, vehicle, err)
}

func (s *Server) listSoldVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.catalog.ListSoldVehicles(r.Context())
	if vehicles == nil {
		vehicles = []domain.Vehicle{}
	}
	s.respond(w, vehicles, err)
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request) {
	var req catalog.CreateClientRequest
	if !s.decode(w, r, &req) {
		return
	}
	client, err := s.catalog.CreateClient(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, body any, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed")
		writeError(w, code, "internal error")
		return
	}
	if code == http.StatusServiceUnavailable {
		writeError(w, code, "service is shutting down")
		return
	}
	writeError(w, code, err.Error())
}
