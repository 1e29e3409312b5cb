package httpapi

import (
	"net/http"
	"strconv"

	"tokopaya-be/internal/product"

	"github.com/go-chi/chi/v5"
)

type productHandler struct {
	products product.Repository
}

func (h *productHandler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	respondData(w, http.StatusOK, resp)
}

func (h *productHandler) detail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toProductResponse(p))
}
