package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mini-pos/internal/common/httpx"
	"mini-pos/internal/domain"
	"mini-pos/internal/microservices/table/repository"
	"mini-pos/internal/microservices/table/service"
)

type TableHandler struct {
	service service.TableServiceInterface
}

func NewTableHandler(s service.TableServiceInterface) *TableHandler {
	return &TableHandler{service: s}
}

func (h *TableHandler) Register(r *chi.Mux) {
	r.Post("/tables", h.createTable)
	r.Get("/tables", h.listTables)
	r.Get("/tables/{id}", h.getTable)
	r.Put("/tables/{id}", h.updateTable)
	r.Delete("/tables/{id}", h.deleteTable)
}

func (h *TableHandler) createTable(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}
	if req.Name == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	t, err := h.service.CreateTable(r.Context(), req)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create table"})
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (h *TableHandler) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.service.ListTables(r.Context())
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch tables"})
		return
	}
	if tables == nil {
		tables = []domain.Table{}
	}
	httpx.WriteJSON(w, http.StatusOK, tables)
}

func (h *TableHandler) getTable(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetTable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
			return
		}
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch table"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

// updateTable is the administrative status override. It writes the table
// store directly and deliberately bypasses the occupancy saga.
func (h *TableHandler) updateTable(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}
	if req.Status != domain.TableAvailable && req.Status != domain.TableOccupied {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be 'available' or 'occupied'"})
		return
	}
	if err := h.service.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
			return
		}
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update table"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Updated"})
}

func (h *TableHandler) deleteTable(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTable(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
			return
		}
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete table"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
}
