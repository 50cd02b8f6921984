package session

import (
	"time"

	"github.com/trezcool/heures/core"
)

type Type string

const (
	TypeSubstitution Type = "SUBSTITUTION"
	TypeHomeworkHelp Type = "HOMEWORK_HELP"
	TypeExtraHours   Type = "EXTRA_HOURS"
	TypeOther        Type = "OTHER"
)

var Types = []Type{TypeSubstitution, TypeHomeworkHelp, TypeExtraHours, TypeOther}

func (t Type) IsValid() bool {
	switch t {
	case TypeSubstitution, TypeHomeworkHelp, TypeExtraHours, TypeOther:
		return true
	}
	return false
}

type Status string

const (
	StatusPendingReview     Status = "PENDING_REVIEW"
	StatusPendingValidation Status = "PENDING_VALIDATION"
	StatusValidated         Status = "VALIDATED"
	StatusRejected          Status = "REJECTED"
	StatusPaid              Status = "PAID"
)

var Statuses = []Status{StatusPendingReview, StatusPendingValidation, StatusValidated, StatusRejected, StatusPaid}

func (s Status) IsValid() bool {
	switch s {
	case StatusPendingReview, StatusPendingValidation, StatusValidated, StatusRejected, StatusPaid:
		return true
	}
	return false
}

// TimeSlot is one of the eight fixed half-day slots: M1-M4 in the morning, S1-S4 in the afternoon.
type TimeSlot string

const (
	SlotM1 TimeSlot = "M1"
	SlotM2 TimeSlot = "M2"
	SlotM3 TimeSlot = "M3"
	SlotM4 TimeSlot = "M4"
	SlotS1 TimeSlot = "S1"
	SlotS2 TimeSlot = "S2"
	SlotS3 TimeSlot = "S3"
	SlotS4 TimeSlot = "S4"
)

var TimeSlots = []TimeSlot{SlotM1, SlotM2, SlotM3, SlotM4, SlotS1, SlotS2, SlotS3, SlotS4}

func (ts TimeSlot) IsValid() bool {
	for _, slot := range TimeSlots {
		if ts == slot {
			return true
		}
	}
	return false
}

func (ts TimeSlot) IsMorning() bool {
	return ts.IsValid() && ts[0] == 'M'
}

// DateLayout is the layout of Session.Date.
const DateLayout = "2006-01-02"

type Session struct {
	ID         string      `json:"id"`
	Type       Type        `json:"type"`
	Status     Status      `json:"status"`
	Date       string      `json:"date"`
	Slot       TimeSlot    `json:"slot"`
	TeacherID  string      `json:"teacher_id"`
	Payload    Payload     `json:"payload"`
	Feedback   string      `json:"feedback,omitempty"`
	Conversion *Conversion `json:"conversion,omitempty"`
	CreatedAt  time.Time   `json:"created_at"` // UTC
	CreatedBy  string      `json:"created_by"`
	UpdatedAt  time.Time   `json:"updated_at"` // UTC
	UpdatedBy  string      `json:"updated_by"`
	Version    int         `json:"version"`
}

// Conversion records the payable category and duration assigned to an OTHER session on validation.
type Conversion struct {
	TargetType Type      `json:"target_type"`
	Hours      float64   `json:"hours"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Clone returns a copy of c, nil-safe.
func (c *Conversion) Clone() *Conversion {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	s.Conversion = s.Conversion.Clone()
	return s
}

type MimeKind string

const (
	KindPDF      MimeKind = "pdf"
	KindImage    MimeKind = "image"
	KindDocument MimeKind = "document"
	KindOther    MimeKind = "other"
)

type Attachment struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Kind      MimeKind  `json:"kind"`
	Size      int64     `json:"size"`
	Verified  bool      `json:"verified"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"` // UTC
	CreatedBy string    `json:"created_by"`
}

// NewAttachment describes an evidence file to attach to a session.
// Only the metadata is recorded; the file content lives in the caller's file store.
type NewAttachment struct {
	Filename string `json:"filename" validate:"required,notblank,max=255"`
	MimeType string `json:"mime_type" validate:"required,max=255"`
	Size     int64  `json:"size" validate:"gt=0"`
}

// NewSession contains information needed to declare a new session.
// Exactly the payload fields matching Type must be set.
type NewSession struct {
	Type         Type                 `json:"type" validate:"required,sessiontype"`
	Date         string               `json:"date" validate:"required,datetime=2006-01-02"`
	Slot         TimeSlot             `json:"slot" validate:"required,timeslot"`
	Substitution *SubstitutionPayload `json:"substitution,omitempty"`
	HomeworkHelp *HomeworkHelpPayload `json:"homework_help,omitempty"`
	Description  string               `json:"description,omitempty"`
}

func (ns *NewSession) Clean() {
	ns.Date = core.CleanString(ns.Date)
	ns.Slot = TimeSlot(core.CleanString(string(ns.Slot)))
	ns.Description = core.CleanString(ns.Description)
	if ns.Substitution != nil {
		ns.Substitution.ReplacedTeacher = core.CleanString(ns.Substitution.ReplacedTeacher)
		ns.Substitution.Class = core.CleanString(ns.Substitution.Class)
	}
	if ns.HomeworkHelp != nil {
		ns.HomeworkHelp.GradeLevel = core.CleanString(ns.HomeworkHelp.GradeLevel)
	}
}

// Payload builds the payload variant matching ns.Type.
func (ns *NewSession) Payload() (Payload, error) {
	switch ns.Type {
	case TypeSubstitution:
		if ns.Substitution == nil {
			return nil, errPayloadMismatch
		}
		return *ns.Substitution, nil
	case TypeHomeworkHelp:
		if ns.HomeworkHelp == nil {
			return nil, errPayloadMismatch
		}
		return *ns.HomeworkHelp, nil
	case TypeExtraHours:
		return ExtraHoursPayload{Description: ns.Description}, nil
	case TypeOther:
		return OtherPayload{Description: ns.Description}, nil
	}
	return nil, errUnknownType
}

// SessionPatch defines what a teacher may change on a session while it is editable.
// Nil fields are left untouched; changing Type requires the matching payload fields.
type SessionPatch struct {
	Type         *Type                `json:"type"`
	Date         *string              `json:"date"`
	Slot         *TimeSlot            `json:"slot"`
	Substitution *SubstitutionPayload `json:"substitution"`
	HomeworkHelp *HomeworkHelpPayload `json:"homework_help"`
	Description  *string              `json:"description"`
}

// apply overlays p onto the declaration of s.
func (p SessionPatch) apply(s Session) NewSession {
	ns := declarationOf(s)
	if p.Type != nil && *p.Type != ns.Type {
		ns.Type = *p.Type
		ns.Substitution, ns.HomeworkHelp, ns.Description = nil, nil, ""
	}
	if p.Date != nil {
		ns.Date = *p.Date
	}
	if p.Slot != nil {
		ns.Slot = *p.Slot
	}
	if p.Substitution != nil {
		sub := *p.Substitution
		ns.Substitution = &sub
	}
	if p.HomeworkHelp != nil {
		hh := *p.HomeworkHelp
		ns.HomeworkHelp = &hh
	}
	if p.Description != nil {
		ns.Description = *p.Description
	}
	return ns
}

// declarationOf returns the NewSession that would declare s as it stands.
func declarationOf(s Session) NewSession {
	ns := NewSession{Type: s.Type, Date: s.Date, Slot: s.Slot}
	switch p := s.Payload.(type) {
	case SubstitutionPayload:
		ns.Substitution = &p
	case HomeworkHelpPayload:
		ns.HomeworkHelp = &p
	case ExtraHoursPayload:
		ns.Description = p.Description
	case OtherPayload:
		ns.Description = p.Description
	}
	return ns
}

// ConversionRequest is supplied by the director when validating an OTHER session.
type ConversionRequest struct {
	TargetType Type    `json:"target_type"`
	Hours      float64 `json:"hours"`
}

type TransitionOptions struct {
	Comment    string             `json:"comment"`
	Conversion *ConversionRequest `json:"conversion"`
}

type QueryFilter struct {
	TeacherID string   `query:"teacher_id"`
	Statuses  []Status `query:"status"`
	Types     []Type   `query:"type"`
	DateFrom  string   `query:"date_from"`
	DateTo    string   `query:"date_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.TeacherID == "" && qf.Statuses == nil && qf.Types == nil && qf.DateFrom == "" && qf.DateTo == ""
}

func (qf *QueryFilter) Clean() {
	qf.TeacherID = core.CleanString(qf.TeacherID)
	qf.DateFrom = core.CleanString(qf.DateFrom)
	qf.DateTo = core.CleanString(qf.DateTo)
}
