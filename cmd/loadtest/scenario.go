package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/service/catalog"
)

const (
	stepCreateVehicle = "create_vehicle"
	stepCreateClient  = "create_client"
	stepPurchase      = "purchase"
	stepWait          = "wait_execution"
	stepScenario      = "scenario"
)

// apiClient оборачивает HTTP API сервиса продаж.
type apiClient struct {
	baseURL string
	http    *http.Client
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, strings.TrimSpace(e.body))
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, &apiError{status: resp.StatusCode, body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type purchaseRequest struct {
	VehicleID             string `json:"vehicleId"`
	ClientID              string `json:"clientId"`
	CustomerCancelled     bool   `json:"customerCancelled,omitempty"`
	ReservationTTLMinutes int    `json:"reservationTtlMinutes,omitempty"`
	MaxPaymentChecks      int    `json:"maxPaymentChecks,omitempty"`
	PaymentApproved       *bool  `json:"paymentApproved,omitempty"`
}

type purchaseAccepted struct {
	SaleID          string `json:"saleId"`
	ExecutionHandle string `json:"executionHandle"`
}

// scenarioRunner проводит одну покупку от регистрации автомобиля до финала саги.
type scenarioRunner struct {
	api       *apiClient
	cfg       config
	collector *collector
	sleep     func(context.Context, time.Duration) error
}

func (r *scenarioRunner) run(ctx context.Context, index int) {
	started := time.Now()
	status, err := r.purchase(ctx, index)

	expected := r.expectedStatus(index)
	ok := err == nil && status == expected
	outcome := string(status)
	if err != nil {
		outcome = "error"
	}
	r.collector.record(stepScenario, time.Since(started), outcome, ok)
}

func (r *scenarioRunner) purchase(ctx context.Context, index int) (domain.ExecutionStatus, error) {
	var vehicle domain.Vehicle
	err := r.call(ctx, stepCreateVehicle, http.MethodPost, "/vehicles", catalog.CreateVehicleRequest{
		Brand: "Lada",
		Model: "Vesta",
		Year:  2024,
		Color: "white",
		Price: r.cfg.price,
	}, &vehicle)
	if err != nil {
		return "", err
	}

	tag := r.cfg.customerTag + "-" + strconv.Itoa(index)
	var client domain.Client
	err = r.call(ctx, stepCreateClient, http.MethodPost, "/clients", catalog.CreateClientRequest{
		FullName:       "Load Test " + tag,
		Email:          tag + "@loadtest.local",
		DocumentNumber: fmt.Sprintf("4500%06d", index),
		PaymentKey:     "card-" + tag,
		Address:        "Moscow",
	}, &client)
	if err != nil {
		return "", err
	}

	req := purchaseRequest{
		VehicleID:             vehicle.ID,
		ClientID:              client.ID,
		ReservationTTLMinutes: 15,
		MaxPaymentChecks:      1,
	}
	approved := r.cfg.mode == modeApprove
	req.PaymentApproved = &approved
	if shouldCancel(index, r.cfg.cancelRate) {
		req.CustomerCancelled = true
	}

	var accepted purchaseAccepted
	if err := r.call(ctx, stepPurchase, http.MethodPost, "/purchases", req, &accepted); err != nil {
		return "", err
	}
	return r.waitExecution(ctx, accepted.ExecutionHandle)
}

func (r *scenarioRunner) waitExecution(ctx context.Context, handle string) (domain.ExecutionStatus, error) {
	started := time.Now()
	deadline := started.Add(r.cfg.waitTimeout)

	for {
		var exec domain.Execution
		if _, err := r.api.do(ctx, http.MethodGet, "/executions/"+handle, nil, &exec); err != nil {
			r.collector.record(stepWait, time.Since(started), "error", false)
			return "", err
		}
		if exec.Status.IsTerminal() {
			r.collector.record(stepWait, time.Since(started), string(exec.Status), true)
			return exec.Status, nil
		}
		if time.Now().After(deadline) {
			r.collector.record(stepWait, time.Since(started), "timeout", false)
			return "", fmt.Errorf("execution %s still %s after %s", handle, exec.Status, r.cfg.waitTimeout)
		}
		if err := r.sleep(ctx, r.cfg.pollInterval); err != nil {
			r.collector.record(stepWait, time.Since(started), "cancelled", false)
			return "", err
		}
	}
}

func (r *scenarioRunner) call(ctx context.Context, step, method, path string, body, out any) error {
	started := time.Now()
	status, err := r.api.do(ctx, method, path, body, out)
	outcome := strconv.Itoa(status)
	if status == 0 {
		outcome = "transport_error"
	}
	r.collector.record(step, time.Since(started), outcome, err == nil)
	return err
}

func (r *scenarioRunner) expectedStatus(index int) domain.ExecutionStatus {
	if r.cfg.mode == modeDecline || shouldCancel(index, r.cfg.cancelRate) {
		return domain.ExecutionStatusCompensated
	}
	return domain.ExecutionStatusSucceeded
}

// shouldCancel детерминированно отбирает cancelRate процентов сценариев.
func shouldCancel(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
