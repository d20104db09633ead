package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/rl1809/stock-allocation/internal/core/domain"
	"github.com/rl1809/stock-allocation/internal/core/service"
	"github.com/rl1809/stock-allocation/internal/port"
	"github.com/rl1809/stock-allocation/pkg/logger"
)

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	inventoryService *service.InventoryService
	pingers          []Pinger
}

type CreateInventoryHTTPRequest struct {
	ItemID           string `json:"item_id"`
	Quantity         int    `json:"quantity"`
	ReservedQuantity int    `json:"reserved_quantity"`
	Location         string `json:"location"`
}

type StockHTTPRequest struct {
	RequestID string `json:"request_id"`
	Amount    int    `json:"amount"`
}

type HTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func NewHTTPHandler(inventoryService *service.InventoryService, pingers ...Pinger) *HTTPHandler {
	return &HTTPHandler{inventoryService: inventoryService, pingers: pingers}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	router.HandleFunc("/api/inventory", h.ListInventory).Methods(http.MethodGet)
	router.HandleFunc("/api/inventory", h.CreateInventory).Methods(http.MethodPost)
	router.HandleFunc("/api/inventory/{item_id}", h.GetInventory).Methods(http.MethodGet)
	router.HandleFunc("/api/inventory/{item_id}/allocate", h.stockHandler(h.inventoryService.Allocate, "allocated")).Methods(http.MethodPost)
	router.HandleFunc("/api/inventory/{item_id}/deallocate", h.stockHandler(h.inventoryService.Deallocate, "deallocated")).Methods(http.MethodPost)
	router.HandleFunc("/api/inventory/{item_id}/fulfill", h.stockHandler(h.inventoryService.Fulfill, "fulfilled")).Methods(http.MethodPost)
	router.HandleFunc("/api/inventory/{item_id}/movements", h.ListMovements).Methods(http.MethodGet)
}

func (h *HTTPHandler) CreateInventory(w http.ResponseWriter, r *http.Request) {
	var req CreateInventoryHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "invalid request body"})
		return
	}

	snap, err := h.inventoryService.CreateInventory(r.Context(), service.CreateInventoryInput{
		ItemID:           req.ItemID,
		Quantity:         req.Quantity,
		ReservedQuantity: req.ReservedQuantity,
		Location:         req.Location,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusCreated, HTTPResponse{
		Success: true,
		Message: "inventory created",
		Data:    snap,
	})
}

func (h *HTTPHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	snap, err := h.inventoryService.GetInventory(r.Context(), mux.Vars(r)["item_id"])
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Data: snap})
}

func (h *HTTPHandler) ListInventory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	snaps, err := h.inventoryService.ListInventory(r.Context(), limit, offset)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Data: snaps})
}

func (h *HTTPHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	movements, err := h.inventoryService.ListMovements(r.Context(), mux.Vars(r)["item_id"], limit)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Data: movements})
}

type stockOperation func(ctx context.Context, requestID, itemID string, amount int) (domain.InventorySnapshot, error)

func (h *HTTPHandler) stockHandler(op stockOperation, verb string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StockHTTPRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "invalid request body"})
			return
		}

		snap, err := op(r.Context(), req.RequestID, mux.Vars(r)["item_id"], req.Amount)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}

		writeJSON(w, http.StatusOK, HTTPResponse{
			Success: true,
			Message: "stock " + verb,
			Data:    snap,
		})
	}
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			logger.Warn(ctx).Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, HTTPResponse{Message: "backend unavailable"})
			return
		}
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Message: "ok"})
}

// httpStatus maps service errors onto status codes and client-safe messages.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientAvailable), errors.Is(err, domain.ErrExceedsReserved):
		return http.StatusConflict, err.Error()
	case domain.IsValidationError(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInventoryNotFound):
		return http.StatusNotFound, "inventory not found"
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, port.ErrAlreadyExists):
		return http.StatusConflict, "inventory already exists"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, message := httpStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error(ctx).Err(err).Msg("request failed")
	}
	writeJSON(w, status, HTTPResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
