package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"rxdesk/m/domain"
	"rxdesk/m/internal/dispense"
	"rxdesk/m/internal/inventory"
	"rxdesk/m/internal/invoice"
)

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db       *sqlx.DB
	secret   string
	stock    *inventory.Store
	dispense *dispense.Service
	invoices *invoice.Service
}

// New constructs a Handler.
func New(db *sqlx.DB, secret string) *Handler {
	stock := inventory.New(db)
	return &Handler{
		db:       db,
		secret:   secret,
		stock:    stock,
		dispense: dispense.NewService(db, stock),
		invoices: invoice.NewService(db),
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // Change "*" to a list of allowed domains (e.g., ["http://localhost:3000"])
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/drugs", func(r chi.Router) {
			r.Get("/", h.listDrugs)
			r.Post("/", h.upsertDrug)
		})

		pr.Route("/requests", func(r chi.Router) {
			r.Post("/", h.submitRequest)
			r.Get("/", h.listRequests)
			r.Get("/{id}", h.getRequest)
			r.Post("/{id}/pending", h.advanceToPending)
			r.Post("/{id}/lines/{line}/dispense", h.toggleDispensed)
			r.Put("/{id}/remarks", h.setRemarks)
			r.Post("/{id}/complete", h.completeRequest)
		})

		pr.Route("/invoices", func(r chi.Router) {
			r.Post("/", h.saveInvoicePayload)
			r.Post("/normalize", h.normalizeInvoice)
			r.Get("/by-prescription/{id}", h.invoiceByPrescription)
			r.Get("/{id}", h.invoiceByID)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, role string) (string, error) {
	claims := authClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := r.Context().Value(ctxRole)
	if role == nil {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	current := role.(string)
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

// Auth Handlers

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "username, email, password and role are required")
		return
	}
	if req.Role != "admin" && req.Role != "pharmacist" {
		respondError(w, http.StatusBadRequest, "role must be admin or pharmacist")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}

	var userID int64
	err = h.db.QueryRowx(`INSERT INTO users (username, email, password, role) VALUES (?, ?, ?, ?) RETURNING id`,
		req.Username, strings.ToLower(req.Email), hashed, req.Role).Scan(&userID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "unique constraint") {
			respondError(w, http.StatusConflict, "email already exists")
		} else {
			respondError(w, http.StatusInternalServerError, "db error: "+err.Error())
		}
		return
	}

	token, err := h.generateToken(userID, req.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: domain.User{ID: userID, Username: req.Username, Email: strings.ToLower(req.Email), Role: req.Role}})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.db.Get(&user, `SELECT id, username, email, password, role FROM users WHERE email = ?`, strings.ToLower(req.Email))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.generateToken(user.ID, user.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	uid := r.Context().Value(ctxUserID).(int64)
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if _, err := h.db.Exec(`UPDATE users SET password = ? WHERE id = ?`, hashed, uid); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Drug stock handlers

func (h *Handler) listDrugs(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	drugs, err := h.stock.List(r.Context(), query)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list drug stock")
		return
	}
	respondJSON(w, http.StatusOK, drugs)
}

func (h *Handler) upsertDrug(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin") {
		return
	}
	var ds domain.DrugStock
	if err := decodeJSON(r, &ds); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(ds.Name) == "" || ds.Stock < 0 {
		respondError(w, http.StatusBadRequest, "name and non-negative stock are required")
		return
	}
	if err := h.stock.Upsert(r.Context(), ds); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to save drug stock")
		return
	}
	respondJSON(w, http.StatusCreated, ds)
}

// Fulfillment handlers

// requestView augments a request with the per-drug flag map the listing
// and print screens consume.
type requestView struct {
	*domain.FulfillmentRequest
	DispensedFlags map[string]bool `json:"dispensed_flags"`
}

func viewOf(req *domain.FulfillmentRequest) requestView {
	return requestView{FulfillmentRequest: req, DispensedFlags: req.DispensedFlags()}
}

func (h *Handler) submitRequest(w http.ResponseWriter, r *http.Request) {
	var req dispense.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.dispense.Submit(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, viewOf(created))
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	status := domain.RequestStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", domain.StatusRequested, domain.StatusPending, domain.StatusFulfilled:
	default:
		respondError(w, http.StatusBadRequest, "status must be requested, pending or fulfilled")
		return
	}
	requests, err := h.dispense.List(r.Context(), status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list requests")
		return
	}
	views := make([]requestView, len(requests))
	for i := range requests {
		views[i] = viewOf(&requests[i])
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	req, err := h.dispense.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(req))
}

func (h *Handler) advanceToPending(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	req, err := h.dispense.AdvanceToPending(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(req))
}

func (h *Handler) toggleDispensed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	lineNo, err := strconv.ParseInt(chi.URLParam(r, "line"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid line number")
		return
	}
	req, err := h.dispense.ToggleDispensed(r.Context(), id, lineNo)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(req))
}

func (h *Handler) setRemarks(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	var payload struct {
		Remarks string `json:"remarks"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := h.dispense.SetRemarks(r.Context(), id, payload.Remarks)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(req))
}

func (h *Handler) completeRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	req, err := h.dispense.Complete(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(req))
}

// Invoice handlers

type invoicePayloadRequest struct {
	InvoiceID      string          `json:"invoice_id"`
	PrescriptionID string          `json:"prescription_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

func (h *Handler) saveInvoicePayload(w http.ResponseWriter, r *http.Request) {
	var req invoicePayloadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.invoices.Save(r.Context(), req.InvoiceID, req.PrescriptionID, req.Payload); err != nil {
		if errors.Is(err, domain.ErrInvalidLine) {
			respondError(w, http.StatusBadRequest, "invoice_id and a JSON payload are required")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to save invoice payload")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "payload saved"})
}

func (h *Handler) invoiceByID(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.ByInvoiceID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (h *Handler) invoiceByPrescription(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.ByPrescriptionID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// normalizeInvoice runs the normalizer over an ad hoc payload without
// persisting it; the print preview uses this.
func (h *Handler) normalizeInvoice(w http.ResponseWriter, r *http.Request) {
	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	inv := invoice.Normalize(raw)
	if inv == nil {
		respondError(w, http.StatusBadRequest, "payload must be a JSON object")
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// Helpers

func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidState):
		respondError(w, http.StatusConflict, "request is not in a valid state for this operation")
	case errors.Is(err, domain.ErrInsufficientStock):
		respondError(w, http.StatusConflict, "insufficient stock")
	case errors.Is(err, domain.ErrInvalidLine):
		respondError(w, http.StatusBadRequest, "invalid prescription line")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
