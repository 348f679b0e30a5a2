package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mini-pos/internal/common/httpx"
	"mini-pos/internal/domain"
	"mini-pos/internal/microservices/menu/repository"
	"mini-pos/internal/microservices/menu/service"
)

type MenuHandler struct {
	service service.MenuServiceInterface
}

func NewMenuHandler(s service.MenuServiceInterface) *MenuHandler {
	return &MenuHandler{service: s}
}

func (h *MenuHandler) Register(r *chi.Mux) {
	r.Post("/menus", h.createMenu)
	r.Get("/menus", h.listMenus)
	r.Get("/menus/{id}", h.getMenu)
	r.Put("/menus/{id}", h.updateMenu)
	r.Delete("/menus/{id}", h.deleteMenu)
}

func (h *MenuHandler) createMenu(w http.ResponseWriter, r *http.Request) {
	var req domain.UpsertMenuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}
	if req.Name == "" || req.Price < 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "name and a non-negative price are required"})
		return
	}
	m, err := h.service.CreateMenuItem(r.Context(), req)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create menu item"})
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, m)
}

func (h *MenuHandler) listMenus(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListMenuItems(r.Context())
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch menu items"})
		return
	}
	if items == nil {
		items = []domain.MenuItem{}
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *MenuHandler) getMenu(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetMenuItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
			return
		}
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch menu item"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, m)
}

func (h *MenuHandler) updateMenu(w http.ResponseWriter, r *http.Request) {
	var req domain.UpsertMenuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}
	if err := h.service.UpdateMenuItem(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
			return
		}
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update menu item"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Updated"})
}

func (h *MenuHandler) deleteMenu(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMenuItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
			return
		}
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete menu item"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
}
