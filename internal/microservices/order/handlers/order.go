package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mini-pos/internal/common/httpx"
	"mini-pos/internal/domain"
	"mini-pos/internal/microservices/order/repository"
	"mini-pos/internal/microservices/order/service"
)

type OrderHandler struct {
	service service.OrderServiceInterface
}

func NewOrderHandler(s service.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{service: s}
}

func (h *OrderHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/complete", h.completeOrder)
}

type orderResponse struct {
	domain.Order
	Message string `json:"message"`
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}

	order, err := h.service.PlaceOrder(r.Context(), req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
			return
		}
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create order"})
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, orderResponse{
		Order:   order,
		Message: "Order created. Table occupation in progress...",
	})
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch orders"})
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	httpx.WriteJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Order not found"})
			return
		}
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch order"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) completeOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.CompleteOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Order not found"})
			return
		}
		var cerr *service.ConflictError
		if errors.As(err, &cerr) {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":         "Only confirmed orders can be completed",
				"currentStatus": cerr.CurrentStatus,
			})
			return
		}
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to complete order"})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{
		Order:   order,
		Message: "Order completed. Table release in progress...",
	})
}
