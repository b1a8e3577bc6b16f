package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/partyquest/internal/shop"
)

// PurchaseRequest selects a catalog item. Amount is the number of points to
// spend on variable-price items and is ignored otherwise.
type PurchaseRequest struct {
	ItemID string `json:"itemId"`
	Amount int    `json:"amount,omitempty"`
}

func handleShopItems() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, shop.Catalog)
	}
}

func handleShopOwned(logger *slog.Logger, svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owned, err := svc.Purchases(r.Context(), sessionFrom(r))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, owned)
	}
}

func handleShopQuote(logger *slog.Logger, svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PurchaseRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		q, err := svc.Quote(r.Context(), sessionFrom(r), req.ItemID, req.Amount)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func handleShopPurchase(logger *slog.Logger, svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PurchaseRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		receipt, err := svc.Purchase(r.Context(), sessionFrom(r), req.ItemID, req.Amount)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, receipt)
	}
}
