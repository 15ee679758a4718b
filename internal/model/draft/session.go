package draft

import "time"

// Status describes whether a drafting session still accepts turns.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// ClientType is the kind of client the document is issued to.
type ClientType string

const (
	ClientUnset      ClientType = ""
	ClientCompany    ClientType = "company"
	ClientIndividual ClientType = "individual"
)

// Client is the resolved buyer written on the document.
type Client struct {
	Name               string `json:"name"`
	Address            string `json:"address"`
	City               string `json:"city"`
	County             string `json:"county"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	Identifier         string `json:"identifier,omitempty"`
}

// Session captures one document-drafting dialogue.
type Session struct {
	ID                   string        `json:"id"`
	Source               string        `json:"source"`
	ExternalContact      string        `json:"externalContact,omitempty"`
	CurrentStep          Step          `json:"currentStep"`
	Status               Status        `json:"status"`
	ClientType           ClientType    `json:"clientType,omitempty"`
	ClientIdentifier     string        `json:"clientIdentifier,omitempty"`
	ClientSnapshot       *Client       `json:"clientSnapshot,omitempty"`
	Products             []ProductLine `json:"products"`
	ResultDocumentID     string        `json:"resultDocumentId,omitempty"`
	ResultDocumentNumber string        `json:"resultDocumentNumber,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

// HasClient reports whether a client has been committed.
func (s Session) HasClient() bool {
	return s.ClientSnapshot != nil
}

// Completed reports whether the session produced its document.
func (s Session) Completed() bool {
	return s.Status == StatusCompleted
}

// Clone returns a copy that shares no mutable state with s.
func (s Session) Clone() Session {
	out := s
	if s.ClientSnapshot != nil {
		client := *s.ClientSnapshot
		out.ClientSnapshot = &client
	}
	out.Products = copyLines(s.Products)
	return out
}

// copyLines keeps an empty list empty rather than nil, so it encodes as [].
func copyLines(lines []ProductLine) []ProductLine {
	out := make([]ProductLine, 0, len(lines))
	return append(out, lines...)
}

// SessionUpdate lists the fields a turn changes. Nil fields are left untouched;
// Products, when non-nil, replaces the committed list as a whole.
type SessionUpdate struct {
	CurrentStep          *Step
	Status               *Status
	ClientType           *ClientType
	ClientIdentifier     *string
	ClientSnapshot       *Client
	Products             []ProductLine
	ResultDocumentID     *string
	ResultDocumentNumber *string
}

// Empty reports whether the update changes nothing.
func (u SessionUpdate) Empty() bool {
	return u.CurrentStep == nil && u.Status == nil && u.ClientType == nil &&
		u.ClientIdentifier == nil && u.ClientSnapshot == nil && u.Products == nil &&
		u.ResultDocumentID == nil && u.ResultDocumentNumber == nil
}

// Apply writes the update onto s.
func (u SessionUpdate) Apply(s *Session) {
	if u.CurrentStep != nil {
		s.CurrentStep = *u.CurrentStep
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.ClientType != nil {
		s.ClientType = *u.ClientType
	}
	if u.ClientIdentifier != nil {
		s.ClientIdentifier = *u.ClientIdentifier
	}
	if u.ClientSnapshot != nil {
		client := *u.ClientSnapshot
		s.ClientSnapshot = &client
	}
	if u.Products != nil {
		s.Products = copyLines(u.Products)
	}
	if u.ResultDocumentID != nil {
		s.ResultDocumentID = *u.ResultDocumentID
	}
	if u.ResultDocumentNumber != nil {
		s.ResultDocumentNumber = *u.ResultDocumentNumber
	}
}

// StepPtr, StatusPtr and StringPtr build SessionUpdate fields inline.
func StepPtr(s Step) *Step { return &s }

func StatusPtr(s Status) *Status { return &s }

func StringPtr(s string) *string { return &s }

func ClientTypePtr(c ClientType) *ClientType { return &c }
