/*
handlers.go - HTTP API handlers for the clinic billing engine

PURPOSE:
  Exposes the billing and compensation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Auth:
    POST   /api/auth/login             Authenticate, returns JWT
    POST   /api/auth/activate          Exchange activation key for password

  Sessions:
    GET    /api/sessions               List sessions (employee + day filters)
    POST   /api/sessions               Create session (overlap-gated)
    GET    /api/sessions/{id}          Get session
    PUT    /api/sessions/{id}          Update session (overlap-gated)
    DELETE /api/sessions/{id}          Delete session

  Rates:
    GET    /api/rates                  List rate records
    POST   /api/rates                  Create rate record
    GET    /api/rates/resolve          Resolve effective rate for a triple
    PUT    /api/rates/{id}             Update rate record
    DELETE /api/rates/{id}             Delete rate record

  Invoices:
    POST   /api/invoices/generate      Generate invoice for client + range
    GET    /api/invoices               List invoices
    GET    /api/invoices/{number}      Get invoice with snapshot lines
    POST   /api/invoices/{number}/status  Status transition
    DELETE /api/invoices/{number}      Delete invoice, reverse flags

  Paystubs:
    POST   /api/paystubs/generate      Preview or commit a paystub
    GET    /api/paystubs               List paystubs
    GET    /api/paystubs/{id}          Get paystub with items
    DELETE /api/paystubs/{id}          Delete paystub, reverse flags

  Admin:
    POST   /api/admin/users            Create account, returns activation key
    GET    /api/admin/users            List accounts with lockout state
    POST   /api/admin/users/{email}/lock    Administrative lock
    POST   /api/admin/users/{email}/unlock  Clear lock, restore attempts

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Bad credentials
  - 403: Locked or disabled account
  - 404: Resource not found
  - 409: Conflict (overlap, duplicate number)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Overdue-invoice reminder loop
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearbrook/clinic-engine/auth"
	"github.com/clearbrook/clinic-engine/billing"
	"github.com/clearbrook/clinic-engine/config"
	"github.com/clearbrook/clinic-engine/notify"
	"github.com/clearbrook/clinic-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Auth     *auth.Service
	Conflict *billing.ConflictDetector
	Invoices *billing.InvoiceGenerator
	PayStubs *billing.PayStubGenerator
	Notify   *notify.Queue
	Config   config.Config
}

// NewHandler wires the engine components around one store.
func NewHandler(store *sqlite.Store, cfg config.Config, queue *notify.Queue) *Handler {
	paystubs := billing.NewPayStubGenerator(store)
	paystubs.Notifier = queue
	return &Handler{
		Store:    store,
		Auth:     auth.NewService(store, []byte(cfg.TokenSecret), cfg.TokenTTL),
		Conflict: billing.NewConflictDetector(store),
		Invoices: billing.NewInvoiceGenerator(store, cfg.InvoicePrefix, cfg.DueDays),
		PayStubs: paystubs,
		Notify:   queue,
		Config:   cfg,
	}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login authenticates and returns a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	token, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	claims, err := auth.ParseToken(token, []byte(h.Config.TokenSecret))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Email: claims.Email, Role: claims.Role})
}

// Activate exchanges an activation key for a password.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters", nil)
		return
	}

	if err := h.Auth.Activate(r.Context(), req.Email, req.ActivationKey, req.Password); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// ListSessions returns sessions for an employee on a day.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	employeeID := billing.EmployeeID(r.URL.Query().Get("employee_id"))
	day, err := parseDate(r.URL.Query().Get("date"))
	if err != nil || employeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id and date are required", err)
		return
	}

	sessions, err := h.Store.ListSessionsByEmployeeDay(r.Context(), employeeID, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}
	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = toSessionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSession returns a single session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Store.GetSession(r.Context(), billing.SessionID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get session", err)
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(*sess))
}

// CreateSession creates a session after the overlap check passes.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	h.saveSession(w, r, billing.SessionID(uuid.NewString()), http.StatusCreated)
}

// UpdateSession replaces a session, excluding itself from the overlap check.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id := billing.SessionID(chi.URLParam(r, "id"))
	existing, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get session", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}
	if existing.Invoiced || existing.Paid {
		writeError(w, http.StatusConflict, "Session is already invoiced or paid", nil)
		return
	}
	h.saveSession(w, r, id, http.StatusOK)
}

func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request, id billing.SessionID, okStatus int) {
	var req SaveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sess, err := sessionFromRequest(id, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session", err)
		return
	}

	if err := h.Conflict.CheckSession(r.Context(), sess); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.SaveSession(r.Context(), sess); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save session", err)
		return
	}
	writeJSON(w, okStatus, toSessionDTO(sess))
}

// DeleteSession removes a session unless a financial document references it.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := billing.SessionID(chi.URLParam(r, "id"))
	sess, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get session", err)
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}
	if sess.Invoiced || sess.Paid {
		writeError(w, http.StatusConflict, "Session is referenced by an invoice or paystub", nil)
		return
	}
	if err := h.Store.DeleteSession(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionFromRequest(id billing.SessionID, req SaveSessionRequest) (billing.Session, error) {
	var sess billing.Session
	date, err := parseDate(req.Date)
	if err != nil {
		return sess, err
	}
	start, err := billing.ParseTimeOfDay(req.Start)
	if err != nil {
		return sess, err
	}
	end, err := billing.ParseTimeOfDay(req.End)
	if err != nil {
		return sess, err
	}

	sess = billing.Session{
		ID:         id,
		EmployeeID: billing.EmployeeID(req.EmployeeID),
		ClientID:   billing.ClientID(req.ClientID),
		Activity:   billing.ActivityName(req.Activity),
		Date:       date,
		Start:      start,
		End:        end,
	}
	if req.Duration == "" {
		sess.Duration = sess.WallClockHours().Round(2)
	} else {
		sess.Duration, err = decimal.NewFromString(req.Duration)
		if err != nil {
			return sess, err
		}
	}
	return sess, nil
}

// =============================================================================
// RATE HANDLERS
// =============================================================================

// ListRates returns rate records, optionally filtered by employee.
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	var (
		records []billing.RateRecord
		err     error
	)
	if employeeID := r.URL.Query().Get("employee_id"); employeeID != "" {
		records, err = h.Store.ListRatesForEmployee(r.Context(), billing.EmployeeID(employeeID))
	} else {
		records, err = h.Store.ListRates(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rates", err)
		return
	}

	dtos := make([]RateDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRateDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRate creates a rate record.
func (h *Handler) CreateRate(w http.ResponseWriter, r *http.Request) {
	h.saveRate(w, r, billing.RateID(uuid.NewString()), http.StatusCreated)
}

// UpdateRate replaces a rate record.
func (h *Handler) UpdateRate(w http.ResponseWriter, r *http.Request) {
	id := billing.RateID(chi.URLParam(r, "id"))
	existing, err := h.Store.GetRate(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get rate", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Rate not found", nil)
		return
	}
	h.saveRate(w, r, id, http.StatusOK)
}

func (h *Handler) saveRate(w http.ResponseWriter, r *http.Request, id billing.RateID, okStatus int) {
	var req SaveRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := decimal.NewFromString(req.Rate)
	if err != nil || req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id and a decimal rate are required", err)
		return
	}

	rec := billing.RateRecord{
		ID:         id,
		EmployeeID: billing.EmployeeID(req.EmployeeID),
		ClientID:   billing.ClientID(req.ClientID),
		Rate:       rate,
	}
	if req.EffectiveDate != "" {
		rec.EffectiveDate, err = parseDate(req.EffectiveDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective_date", err)
			return
		}
	}

	if err := h.Store.SaveRate(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rate", err)
		return
	}
	writeJSON(w, okStatus, toRateDTO(rec))
}

// DeleteRate removes a rate record. Documents already generated keep their
// snapshots; only future pricing changes.
func (h *Handler) DeleteRate(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteRate(r.Context(), billing.RateID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete rate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveRate answers "what would this triple pay" for a given date.
func (h *Handler) ResolveRate(w http.ResponseWriter, r *http.Request) {
	employeeID := billing.EmployeeID(r.URL.Query().Get("employee_id"))
	clientID := billing.ClientID(r.URL.Query().Get("client_id"))
	asOf, err := parseDate(r.URL.Query().Get("as_of"))
	if err != nil || employeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id and as_of are required", err)
		return
	}

	resolver := billing.NewRateResolver(h.Store)
	rate, err := resolver.Resolve(r.Context(), employeeID, clientID, asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rate": rate.StringFixed(2)})
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// GenerateInvoice creates an invoice for a client's uninvoiced sessions.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req GenerateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err1 := parseDate(req.From)
	to, err2 := parseDate(req.To)
	if req.ClientID == "" || err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "client_id, from, and to are required", nil)
		return
	}

	run, err := h.Invoices.Generate(r.Context(), billing.ClientID(req.ClientID), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := GenerateInvoiceResponse{Invoice: toInvoiceDTO(run.Invoice)}
	for _, warn := range run.Warnings {
		resp.Warnings = append(resp.Warnings, ZeroRateWarningDTO{
			SessionID: string(warn.SessionID),
			Activity:  string(warn.Activity),
			Message:   "activity has no billing category; line priced at zero",
		})
	}

	if client, err := h.Store.GetClient(r.Context(), run.Invoice.ClientID); err == nil && client != nil && h.Notify != nil {
		h.Notify.InvoiceIssued(run.Invoice, *client)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListInvoices returns invoice headers.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Store.ListInvoices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}
	dtos := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toInvoiceDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns an invoice with its snapshot lines.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Store.GetInvoice(r.Context(), billing.InvoiceNumber(chi.URLParam(r, "number")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get invoice", err)
		return
	}
	if inv == nil {
		writeError(w, http.StatusNotFound, "Invoice not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// SetInvoiceStatus applies a status transition.
func (h *Handler) SetInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req SetInvoiceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var paidDate *time.Time
	if req.PaidDate != "" {
		d, err := parseDate(req.PaidDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_date", err)
			return
		}
		paidDate = &d
	}

	number := billing.InvoiceNumber(chi.URLParam(r, "number"))
	err := h.Invoices.SetStatus(r.Context(), number, billing.InvoiceStatus(req.Status), paidDate, req.PaymentNotes)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	inv, err := h.Store.GetInvoice(r.Context(), number)
	if err != nil || inv == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// DeleteInvoice removes an invoice and reverses its session flags.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	err := h.Invoices.Delete(r.Context(), billing.InvoiceNumber(chi.URLParam(r, "number")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYSTUB HANDLERS
// =============================================================================

// GeneratePayStub previews or commits a paystub. Missing rates block the
// commit and are reported so the operator can fill the gaps.
func (h *Handler) GeneratePayStub(w http.ResponseWriter, r *http.Request) {
	var req GeneratePayStubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err1 := parseDate(req.Start)
	end, err2 := parseDate(req.End)
	if req.EmployeeID == "" || err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "employee_id, start, and end are required", nil)
		return
	}

	run, err := h.PayStubs.Generate(r.Context(), billing.EmployeeID(req.EmployeeID), start, end, req.Commit)
	if err != nil && !errors.Is(err, billing.ErrMissingRates) {
		writeDomainError(w, err)
		return
	}

	resp := GeneratePayStubResponse{Committed: run.Committed, PayStub: toPayStubDTO(run.Stub)}
	for _, m := range run.MissingRates {
		resp.MissingRates = append(resp.MissingRates, MissingRateDTO{
			SessionID: string(m.SessionID),
			ClientID:  string(m.ClientID),
			Date:      m.Date.Format(dateFmt),
		})
	}

	status := http.StatusOK
	if run.Committed {
		status = http.StatusCreated
	} else if errors.Is(err, billing.ErrMissingRates) && req.Commit {
		// Requested commit was blocked; the gaps are in the payload.
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// ListPayStubs returns paystub headers, optionally filtered by employee.
func (h *Handler) ListPayStubs(w http.ResponseWriter, r *http.Request) {
	employeeID := billing.EmployeeID(r.URL.Query().Get("employee_id"))
	stubs, err := h.Store.ListPayStubs(r.Context(), employeeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list paystubs", err)
		return
	}
	dtos := make([]PayStubDTO, len(stubs))
	for i, stub := range stubs {
		dtos[i] = toPayStubDTO(stub)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPayStub returns a paystub with its items.
func (h *Handler) GetPayStub(w http.ResponseWriter, r *http.Request) {
	stub, err := h.Store.GetPayStub(r.Context(), billing.PayStubID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get paystub", err)
		return
	}
	if stub == nil {
		writeError(w, http.StatusNotFound, "Paystub not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPayStubDTO(*stub))
}

// DeletePayStub removes a paystub and reverses the paid flags.
func (h *Handler) DeletePayStub(w http.ResponseWriter, r *http.Request) {
	err := h.PayStubs.Delete(r.Context(), billing.PayStubID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CLIENT / EMPLOYEE / ACTIVITY HANDLERS
// =============================================================================

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}
	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.Store.GetClient(r.Context(), billing.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*client))
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	h.saveClient(w, r, billing.ClientID(uuid.NewString()), http.StatusCreated)
}

func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id := billing.ClientID(chi.URLParam(r, "id"))
	existing, err := h.Store.GetClient(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	}
	h.saveClient(w, r, id, http.StatusOK)
}

func (h *Handler) saveClient(w http.ResponseWriter, r *http.Request, id billing.ClientID, okStatus int) {
	var req ClientDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.FirstName == "" {
		writeError(w, http.StatusBadRequest, "first_name is required", nil)
		return
	}

	client := billing.Client{
		ID:            id,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		GuardianName:  req.GuardianName,
		GuardianEmail: req.GuardianEmail,
		Address:       req.Address,
		City:          req.City,
		State:         req.State,
		ZipCode:       req.ZipCode,
	}
	var err error
	if client.TherapyRate, err = parseOptionalDecimal(req.TherapyRate); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid therapy_rate", err)
		return
	}
	if client.SupervisionRate, err = parseOptionalDecimal(req.SupervisionRate); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid supervision_rate", err)
		return
	}

	if err := h.Store.SaveClient(r.Context(), client); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save client", err)
		return
	}
	writeJSON(w, okStatus, toClientDTO(client))
}

func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteClient(r.Context(), billing.ClientID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.GetEmployee(r.Context(), billing.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	h.saveEmployee(w, r, billing.EmployeeID(uuid.NewString()), http.StatusCreated)
}

func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id := billing.EmployeeID(chi.URLParam(r, "id"))
	existing, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	h.saveEmployee(w, r, id, http.StatusOK)
}

func (h *Handler) saveEmployee(w http.ResponseWriter, r *http.Request, id billing.EmployeeID, okStatus int) {
	var req EmployeeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.FirstName == "" {
		writeError(w, http.StatusBadRequest, "first_name is required", nil)
		return
	}

	emp := billing.Employee{
		ID:        id,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Position:  req.Position,
		Email:     req.Email,
		Phone:     req.Phone,
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}
	writeJSON(w, okStatus, toEmployeeDTO(emp))
}

func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteEmployee(r.Context(), billing.EmployeeID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete employee", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.Store.ListActivities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list activities", err)
		return
	}
	dtos := make([]ActivityDTO, len(activities))
	for i, a := range activities {
		dtos[i] = ActivityDTO{Name: string(a.Name), Category: a.Category.String()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveActivity creates or updates an activity definition. The billing
// category is resolved here, once, not at invoice time.
func (h *Handler) SaveActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	a := billing.Activity{
		Name:     billing.ActivityName(req.Name),
		Category: billing.ParseBillingCategory(req.Category),
	}
	if err := h.Store.SaveActivity(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save activity", err)
		return
	}
	writeJSON(w, http.StatusOK, ActivityDTO{Name: string(a.Name), Category: a.Category.String()})
}

func (h *Handler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteActivity(r.Context(), billing.ActivityName(chi.URLParam(r, "name"))); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete activity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN USER HANDLERS
// =============================================================================

// CreateUser registers an account and returns its activation key. The
// account cannot log in until the key is exchanged for a password.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required", nil)
		return
	}

	existing, err := h.Store.GetAccount(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check account", err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "Account already exists", nil)
		return
	}

	role := req.Role
	if role == "" {
		role = "user"
	}
	acct := auth.Account{
		Email:          req.Email,
		Role:           role,
		ActivationKey:  uuid.NewString(),
		FailedAttempts: auth.AttemptCeiling,
	}
	if err := h.Store.SaveAccount(r.Context(), acct); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateUserResponse{Email: acct.Email, ActivationKey: acct.ActivationKey})
}

// ListUsers returns all accounts with their lockout state.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	now := time.Now()
	dtos := make([]UserDTO, len(accounts))
	for i, a := range accounts {
		dto := UserDTO{
			Email:          a.Email,
			Role:           a.Role,
			Activated:      a.ActivationKey == "",
			State:          a.State(now).String(),
			FailedAttempts: a.FailedAttempts,
		}
		if a.State(now) == auth.StateLocked {
			dto.LockedUntil = a.LockedUntil.Format(time.RFC3339)
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LockUser administratively disables an account.
func (h *Handler) LockUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Lock(r.Context(), chi.URLParam(r, "email")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnlockUser clears any lock and restores the attempt ceiling.
func (h *Handler) UnlockUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Unlock(r.Context(), chi.URLParam(r, "email")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateFmt, s)
}

func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine and auth errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var locked *auth.LockedError
	switch {
	case errors.As(err, &locked):
		writeError(w, http.StatusForbidden, locked.Error(), nil)
	case errors.Is(err, auth.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, auth.ErrBadCredentials),
		errors.Is(err, auth.ErrNotActivated),
		errors.Is(err, auth.ErrBadActivationKey),
		errors.Is(err, auth.ErrAccountNotFound):
		writeError(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, billing.ErrScheduleConflict),
		errors.Is(err, billing.ErrDuplicateInvoiceNumber):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
