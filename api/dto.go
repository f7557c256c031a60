/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DATES AND MONEY:
  Dates travel as "YYYY-MM-DD" strings, times of day as "HH:MM". Monetary
  values and hours are decimal strings ("40.00"), never JSON floats.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/clearbrook/clinic-engine/billing"
)

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type ActivateRequest struct {
	Email         string `json:"email"`
	ActivationKey string `json:"activation_key"`
	Password      string `json:"password"`
}

// =============================================================================
// EMPLOYEES / CLIENTS / ACTIVITIES
// =============================================================================

type EmployeeDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Position  string `json:"position,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type ClientDTO struct {
	ID              string `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	GuardianName    string `json:"guardian_name,omitempty"`
	GuardianEmail   string `json:"guardian_email,omitempty"`
	Address         string `json:"address,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	ZipCode         string `json:"zip_code,omitempty"`
	TherapyRate     string `json:"therapy_rate"`
	SupervisionRate string `json:"supervision_rate"`
}

type ActivityDTO struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// =============================================================================
// SESSIONS
// =============================================================================

type SessionDTO struct {
	ID            string `json:"id"`
	EmployeeID    string `json:"employee_id"`
	ClientID      string `json:"client_id,omitempty"`
	Activity      string `json:"activity"`
	Date          string `json:"date"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Duration      string `json:"duration"`
	Invoiced      bool   `json:"invoiced"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Paid          bool   `json:"paid"`
}

// SaveSessionRequest creates or updates a session. Duration is optional;
// when omitted it is derived from the interval.
type SaveSessionRequest struct {
	EmployeeID string `json:"employee_id"`
	ClientID   string `json:"client_id"`
	Activity   string `json:"activity"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Duration   string `json:"duration,omitempty"`
}

// =============================================================================
// RATES
// =============================================================================

type RateDTO struct {
	ID            string `json:"id"`
	EmployeeID    string `json:"employee_id"`
	ClientID      string `json:"client_id,omitempty"`
	Rate          string `json:"rate"`
	EffectiveDate string `json:"effective_date,omitempty"`
}

type SaveRateRequest struct {
	EmployeeID    string `json:"employee_id"`
	ClientID      string `json:"client_id,omitempty"`
	Rate          string `json:"rate"`
	EffectiveDate string `json:"effective_date,omitempty"`
}

// =============================================================================
// INVOICES
// =============================================================================

type InvoiceDTO struct {
	Number       string           `json:"number"`
	ClientID     string           `json:"client_id"`
	IssuedDate   string           `json:"issued_date"`
	DueDate      string           `json:"due_date"`
	DateFrom     string           `json:"date_from"`
	DateTo       string           `json:"date_to"`
	Total        string           `json:"total"`
	Status       string           `json:"status"`
	PaidDate     string           `json:"paid_date,omitempty"`
	PaymentNotes string           `json:"payment_notes,omitempty"`
	Lines        []InvoiceLineDTO `json:"lines,omitempty"`
}

type InvoiceLineDTO struct {
	SessionID string `json:"session_id"`
	Date      string `json:"date"`
	Activity  string `json:"activity"`
	Duration  string `json:"duration"`
	Rate      string `json:"rate"`
	Cost      string `json:"cost"`
}

type GenerateInvoiceRequest struct {
	ClientID string `json:"client_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type GenerateInvoiceResponse struct {
	Invoice  InvoiceDTO           `json:"invoice"`
	Warnings []ZeroRateWarningDTO `json:"warnings,omitempty"`
}

type ZeroRateWarningDTO struct {
	SessionID string `json:"session_id"`
	Activity  string `json:"activity"`
	Message   string `json:"message"`
}

type SetInvoiceStatusRequest struct {
	Status       string `json:"status"`
	PaidDate     string `json:"paid_date,omitempty"`
	PaymentNotes string `json:"payment_notes,omitempty"`
}

// =============================================================================
// PAYSTUBS
// =============================================================================

type PayStubDTO struct {
	ID            string           `json:"id,omitempty"`
	EmployeeID    string           `json:"employee_id"`
	PeriodStart   string           `json:"period_start"`
	PeriodEnd     string           `json:"period_end"`
	GeneratedDate string           `json:"generated_date"`
	TotalHours    string           `json:"total_hours"`
	TotalAmount   string           `json:"total_amount"`
	EmailSent     bool             `json:"email_sent"`
	Items         []PayStubItemDTO `json:"items,omitempty"`
}

type PayStubItemDTO struct {
	SessionID string `json:"session_id"`
	ClientID  string `json:"client_id,omitempty"`
	Rate      string `json:"rate"`
	Hours     string `json:"hours"`
	Amount    string `json:"amount"`
}

type GeneratePayStubRequest struct {
	EmployeeID string `json:"employee_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Commit     bool   `json:"commit"`
}

type GeneratePayStubResponse struct {
	Committed    bool             `json:"committed"`
	PayStub      PayStubDTO       `json:"paystub"`
	MissingRates []MissingRateDTO `json:"missing_rates,omitempty"`
}

type MissingRateDTO struct {
	SessionID string `json:"session_id"`
	ClientID  string `json:"client_id,omitempty"`
	Date      string `json:"date"`
}

// =============================================================================
// ADMIN / ERRORS
// =============================================================================

type CreateUserRequest struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

type CreateUserResponse struct {
	Email         string `json:"email"`
	ActivationKey string `json:"activation_key"`
}

type UserDTO struct {
	Email          string `json:"email"`
	Role           string `json:"role"`
	Activated      bool   `json:"activated"`
	State          string `json:"state"`
	LockedUntil    string `json:"locked_until,omitempty"`
	FailedAttempts int    `json:"failed_attempts"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

const dateFmt = "2006-01-02"

func toSessionDTO(s billing.Session) SessionDTO {
	return SessionDTO{
		ID:            string(s.ID),
		EmployeeID:    string(s.EmployeeID),
		ClientID:      string(s.ClientID),
		Activity:      string(s.Activity),
		Date:          s.Date.Format(dateFmt),
		Start:         s.Start.String(),
		End:           s.End.String(),
		Duration:      s.Duration.StringFixed(2),
		Invoiced:      s.Invoiced,
		InvoiceNumber: string(s.InvoiceNumber),
		Paid:          s.Paid,
	}
}

func toRateDTO(r billing.RateRecord) RateDTO {
	dto := RateDTO{
		ID:         string(r.ID),
		EmployeeID: string(r.EmployeeID),
		ClientID:   string(r.ClientID),
		Rate:       r.Rate.StringFixed(2),
	}
	if !r.EffectiveDate.IsZero() {
		dto.EffectiveDate = r.EffectiveDate.Format(dateFmt)
	}
	return dto
}

func toClientDTO(c billing.Client) ClientDTO {
	return ClientDTO{
		ID:              string(c.ID),
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		GuardianName:    c.GuardianName,
		GuardianEmail:   c.GuardianEmail,
		Address:         c.Address,
		City:            c.City,
		State:           c.State,
		ZipCode:         c.ZipCode,
		TherapyRate:     c.TherapyRate.StringFixed(2),
		SupervisionRate: c.SupervisionRate.StringFixed(2),
	}
}

func toEmployeeDTO(e billing.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        string(e.ID),
		FirstName: e.FirstName,
		LastName:  e.LastName,
		Position:  e.Position,
		Email:     e.Email,
		Phone:     e.Phone,
	}
}

func toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		Number:       string(inv.Number),
		ClientID:     string(inv.ClientID),
		IssuedDate:   inv.IssuedDate.Format(dateFmt),
		DueDate:      inv.DueDate.Format(dateFmt),
		DateFrom:     inv.DateFrom.Format(dateFmt),
		DateTo:       inv.DateTo.Format(dateFmt),
		Total:        inv.Total.StringFixed(2),
		Status:       string(inv.Status),
		PaymentNotes: inv.PaymentNotes,
	}
	if inv.PaidDate != nil {
		dto.PaidDate = inv.PaidDate.Format(dateFmt)
	}
	for _, line := range inv.Lines {
		dto.Lines = append(dto.Lines, InvoiceLineDTO{
			SessionID: string(line.SessionID),
			Date:      line.Date.Format(dateFmt),
			Activity:  string(line.Activity),
			Duration:  line.Duration.StringFixed(2),
			Rate:      line.Rate.StringFixed(2),
			Cost:      line.Cost.StringFixed(2),
		})
	}
	return dto
}

func toPayStubDTO(stub billing.PayStub) PayStubDTO {
	dto := PayStubDTO{
		ID:            string(stub.ID),
		EmployeeID:    string(stub.EmployeeID),
		PeriodStart:   stub.PeriodStart.Format(dateFmt),
		PeriodEnd:     stub.PeriodEnd.Format(dateFmt),
		GeneratedDate: stub.GeneratedDate.Format(dateFmt),
		TotalHours:    stub.TotalHours.StringFixed(2),
		TotalAmount:   stub.TotalAmount.StringFixed(2),
		EmailSent:     stub.EmailSent,
	}
	for _, item := range stub.Items {
		dto.Items = append(dto.Items, PayStubItemDTO{
			SessionID: string(item.SessionID),
			ClientID:  string(item.ClientID),
			Rate:      item.Rate.StringFixed(2),
			Hours:     item.Hours.StringFixed(2),
			Amount:    item.Amount.StringFixed(2),
		})
	}
	return dto
}
