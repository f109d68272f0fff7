package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/toolrental/rentkeeper/internal/models"
	pkghttp "github.com/toolrental/rentkeeper/pkg/http"
)

// RentalServiceInterface defines the rental operations the handler needs
type RentalServiceInterface interface {
	ListAvailable(ctx context.Context, website string) ([]*models.AvailableAccount, error)
	RentFirstAvailable(ctx context.Context, website string, customer models.Customer) (*models.RentalDetails, error)
	Return(ctx context.Context, accountID string) error
	Status(ctx context.Context, accountID string) (*models.AccountStatus, error)
}

// AccountHandler handles rental API HTTP requests
type AccountHandler struct {
	rentals RentalServiceInterface
}

func NewAccountHandler(rentals RentalServiceInterface) *AccountHandler {
	return &AccountHandler{rentals: rentals}
}

// Request DTOs

// RentRequest represents the request to rent an account
type RentRequest struct {
	Website       string `json:"website" validate:"required,min=1,max=255"`
	CustomerName  string `json:"customer_name,omitempty" validate:"omitempty,max=255"`
	CustomerEmail string `json:"customer_email,omitempty" validate:"omitempty,email"`
	CustomerPhone string `json:"customer_phone,omitempty" validate:"omitempty,max=64"`
}

// RentResponse wraps the credential handoff
type RentResponse struct {
	Account *models.RentalDetails `json:"account"`
}

// ListAvailableResponse lists rentable accounts for a website
type ListAvailableResponse struct {
	Accounts []*models.AvailableAccount `json:"accounts"`
	Total    int                        `json:"total"`
}

// ListAvailable GET /api/accounts/available?website=<name>
func (h *AccountHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	website := r.URL.Query().Get("website")
	if website == "" {
		pkghttp.WriteBadRequest(w, "website query parameter is required")
		return
	}

	accounts, err := h.rentals.ListAvailable(r.Context(), website)
	if err != nil {
		pkghttp.WriteInternalError(w, "failed to list available accounts")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListAvailableResponse{
		Accounts: accounts,
		Total:    len(accounts),
	})
}

// Rent POST /api/accounts/rent
func (h *AccountHandler) Rent(w http.ResponseWriter, r *http.Request) {
	var req RentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	customer := models.Customer{
		Name:  req.CustomerName,
		Email: req.CustomerEmail,
		Phone: req.CustomerPhone,
	}

	details, err := h.rentals.RentFirstAvailable(r.Context(), req.Website, customer)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoAccounts):
			pkghttp.WriteNotFound(w, "no accounts available for this website")
		case errors.Is(err, models.ErrNotAvailable):
			pkghttp.WriteConflict(w, "account is not available")
		default:
			pkghttp.WriteInternalError(w, "failed to rent account")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, RentResponse{Account: details})
}

// Return POST /api/accounts/return/{id}
func (h *AccountHandler) Return(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		pkghttp.WriteBadRequest(w, "account id is required")
		return
	}

	if err := h.rentals.Return(r.Context(), accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "account not found")
			return
		}
		pkghttp.WriteInternalError(w, "failed to return account")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "account returned",
	})
}

// Status GET /api/accounts/status/{id}
func (h *AccountHandler) Status(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		pkghttp.WriteBadRequest(w, "account id is required")
		return
	}

	status, err := h.rentals.Status(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "account not found")
			return
		}
		pkghttp.WriteInternalError(w, "failed to fetch account status")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}
