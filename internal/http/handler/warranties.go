package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"garantio/internal/apperr"
	"garantio/internal/auth"
	"garantio/internal/warranty"

	"github.com/go-chi/chi/v5"
)

type WarrantyHandler struct {
	Svc *warranty.Service
}

type createWarrantyReq struct {
	ArticleID      uint64 `json:"article_id"`
	PurchaseDate   string `json:"purchase_date"` // YYYY-MM-DD
	DurationMonths int    `json:"duration_months"`
}

type updateWarrantyReq struct {
	PurchaseDate   *string `json:"purchase_date"`
	DurationMonths *int    `json:"duration_months"`
	Valid          *bool   `json:"valid"`
}

type createArticleReq struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	return id, err == nil
}

func (h *WarrantyHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createWarrantyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	pd, err := parseDate(req.PurchaseDate)
	if err != nil {
		http.Error(w, "invalid purchase_date (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	wt, err := h.Svc.Create(r.Context(), uid, warranty.CreateInput{
		ArticleID:      req.ArticleID,
		PurchaseDate:   pd,
		DurationMonths: req.DurationMonths,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wt)
}

func (h *WarrantyHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	rows, err := h.Svc.List(r.Context(), uid)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *WarrantyHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	wt, err := h.Svc.Get(r.Context(), uid, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wt)
}

func (h *WarrantyHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req updateWarrantyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	in := warranty.UpdateInput{DurationMonths: req.DurationMonths, Valid: req.Valid}
	if req.PurchaseDate != nil {
		pd, err := parseDate(*req.PurchaseDate)
		if err != nil {
			http.Error(w, "invalid purchase_date (YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		in.PurchaseDate = &pd
	}

	wt, err := h.Svc.Update(r.Context(), uid, id, in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wt)
}

func (h *WarrantyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.Svc.Delete(r.Context(), uid, id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WarrantyHandler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createArticleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	a, err := h.Svc.CreateArticle(r.Context(), uid, strings.TrimSpace(req.Name), req.Tags)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *WarrantyHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	rows, err := h.Svc.ListArticles(r.Context(), uid)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
