package request

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/nexus/core"
)

// Request types
const (
	TypeInit    = "Inicio de Trámite"
	TypeAdvisor = "Designación de Asesor"
)

// Request statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusObserved = "observed"
)

var (
	Types = []string{TypeInit, TypeAdvisor}

	statusLabels = map[string]string{
		StatusPending:  "Pendiente",
		StatusApproved: "Apto",
		StatusObserved: "Observado",
	}
)

func IsValidType(typ string) bool {
	for _, t := range Types {
		if t == typ {
			return true
		}
	}
	return false
}

// StatusLabel is the display label of status.
func StatusLabel(status string) string {
	if lbl, ok := statusLabels[status]; ok {
		return lbl
	}
	return status
}

type Details struct {
	SchoolDesignates    bool   `json:"school_designates"`
	ProposedAdvisorID   string `json:"proposed_advisor_id,omitempty"`
	ProposedAdvisorName string `json:"proposed_advisor_name,omitempty"`
}

// Designation is the advisor assignment attached to an approved advisor request.
type Designation struct {
	AdvisorID   string    `json:"advisor_id"`
	AdvisorName string    `json:"advisor_name"`
	Topic       string    `json:"topic"`
	Date        time.Time `json:"date"`
}

// Request snapshots the student's name, code and career at submission time.
type Request struct {
	ID          string       `json:"id"`
	StudentID   string       `json:"student_id"`
	StudentName string       `json:"student_name"`
	StudentCode string       `json:"student_code"`
	School      string       `json:"school"`
	SchoolCode  string       `json:"school_code"`
	Type        string       `json:"type"`
	Status      string       `json:"status"`
	Details     Details      `json:"details"`
	Designation *Designation `json:"designation,omitempty"`
	Observation string       `json:"observation,omitempty"`
	PreviousID  string       `json:"previous_id,omitempty"` // the observed request this one resubmits
	Date        time.Time    `json:"date"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (r Request) IsPending() bool  { return r.Status == StatusPending }
func (r Request) IsApproved() bool { return r.Status == StatusApproved }
func (r Request) IsObserved() bool { return r.Status == StatusObserved }

// NeedsDesignation reports whether approving r goes through the designation sub-flow.
func (r Request) NeedsDesignation() bool {
	return r.Type == TypeAdvisor && r.Details.SchoolDesignates
}

func (r Request) StatusLabel() string { return StatusLabel(r.Status) }

// NewRequest contains information needed to submit a new Request.
type NewRequest struct {
	Type              string `json:"type" validate:"required"`
	SchoolDesignates  bool   `json:"school_designates"`
	ProposedAdvisorID string `json:"proposed_advisor_id"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.Type = core.CleanString(nr.Type)
	nr.ProposedAdvisorID = core.CleanString(nr.ProposedAdvisorID)
	if err := validate.Struct(nr); err != nil {
		return err
	}
	if !IsValidType(nr.Type) {
		return core.NewFieldError("type", ErrInvalidType)
	}
	if nr.Type != TypeAdvisor {
		nr.SchoolDesignates = false
		nr.ProposedAdvisorID = ""
		return nil
	}
	if nr.SchoolDesignates {
		nr.ProposedAdvisorID = ""
	} else if nr.ProposedAdvisorID == "" {
		return core.NewFieldError("proposed_advisor_id", ErrAdvisorRequired)
	}
	return nil
}

// NewDesignation is the input of the designation sub-flow.
type NewDesignation struct {
	AdvisorID string `json:"advisor_id"`
	Topic     string `json:"topic"`
}

func (nd *NewDesignation) Validate() error {
	nd.AdvisorID = core.CleanString(nd.AdvisorID)
	nd.Topic = core.CleanString(nd.Topic)

	var flds []core.FieldError
	if nd.AdvisorID == "" {
		flds = append(flds, core.FieldError{Field: "advisor_id", Error: ErrAdvisorRequired.Error()})
	}
	if nd.Topic == "" {
		flds = append(flds, core.FieldError{Field: "topic", Error: ErrTopicRequired.Error()})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// Filter narrows the visible requests. Empty or "all" fields are ignored.
type Filter struct {
	Type   string `query:"type"`
	Status string `query:"status"`
}

func (f *Filter) Clean() {
	f.Type = core.CleanString(f.Type)
	f.Status = core.CleanString(f.Status, true /* lower */)
	if strings.EqualFold(f.Type, "all") {
		f.Type = ""
	}
	if f.Status == "all" {
		f.Status = ""
	}
}

// QueryFilter is the repository query. Set fields are ANDed.
type QueryFilter struct {
	Filter

	StudentID       string
	SchoolCode      string
	AdvisorID       string // designated advisor
	PreviousID      string
	SubmittedBefore time.Time
}

// Match reports whether req satisfies every set field of the filter.
func (qf QueryFilter) Match(req Request) bool {
	if qf.Type != "" && req.Type != qf.Type {
		return false
	}
	if qf.Status != "" && req.Status != qf.Status {
		return false
	}
	if qf.StudentID != "" && req.StudentID != qf.StudentID {
		return false
	}
	if qf.SchoolCode != "" && !strings.EqualFold(req.SchoolCode, qf.SchoolCode) {
		return false
	}
	if qf.AdvisorID != "" && (req.Designation == nil || req.Designation.AdvisorID != qf.AdvisorID) {
		return false
	}
	if qf.PreviousID != "" && req.PreviousID != qf.PreviousID {
		return false
	}
	if !qf.SubmittedBefore.IsZero() && !req.Date.Before(qf.SubmittedBefore) {
		return false
	}
	return true
}

// Folder is a dashboard entry: the requests of one type.
type Folder struct {
	Type    string `json:"type"`
	Total   int    `json:"total"`
	Pending int    `json:"pending"`
}

// FUT is the printable single-procedure form (Formulario Único de Trámite).
type FUT struct {
	RequestID string    `json:"request_id,omitempty"`
	Addressee string    `json:"addressee"`
	Paterno   string    `json:"paterno"`
	Materno   string    `json:"materno"`
	Nombres   string    `json:"nombres"`
	Document  string    `json:"document"`
	School    string    `json:"school"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`
}

var futSubjects = map[string]string{
	TypeInit:    "SOLICITUD DE INICIO DE TRÁMITE DE GRADOS Y TÍTULOS",
	TypeAdvisor: "SOLICITUD DE DESIGNACIÓN / PROPUESTA DE ASESOR DE TESIS",
}

// NewFUT fills the form of a reqType request by the given student.
// Names of three words or more read "paterno materno nombres...", two words "paterno nombres".
func NewFUT(name, code, career, reqType string, date time.Time) FUT {
	fut := FUT{
		Addressee: "DIRECTOR DE LA ESCUELA PROFESIONAL DE " + strings.ToUpper(career),
		Document:  code,
		School:    career,
		Subject:   futSubjects[reqType],
		Date:      date,
	}
	words := strings.Fields(name)
	switch {
	case len(words) >= 3:
		fut.Paterno, fut.Materno, fut.Nombres = words[0], words[1], strings.Join(words[2:], " ")
	case len(words) == 2:
		fut.Paterno, fut.Nombres = words[0], words[1]
	case len(words) == 1:
		fut.Nombres = words[0]
	}
	return fut
}
