package session

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Payload is the type-specific part of a Session. There is one variant per Type.
type Payload interface {
	SessionType() Type
}

type (
	SubstitutionPayload struct {
		ReplacedTeacher string `json:"replaced_teacher" validate:"required,notblank,max=255"`
		Class           string `json:"class" validate:"required,notblank,max=50"`
	}

	HomeworkHelpPayload struct {
		StudentCount int    `json:"student_count" validate:"min=1"`
		GradeLevel   string `json:"grade_level" validate:"required,notblank,max=50"`
	}

	ExtraHoursPayload struct {
		Description string `json:"description" validate:"required,notblank"`
	}

	OtherPayload struct {
		Description string `json:"description" validate:"required,notblank"`
	}
)

func (SubstitutionPayload) SessionType() Type { return TypeSubstitution }
func (HomeworkHelpPayload) SessionType() Type { return TypeHomeworkHelp }
func (ExtraHoursPayload) SessionType() Type   { return TypeExtraHours }
func (OtherPayload) SessionType() Type        { return TypeOther }

var (
	errPayloadMismatch = errors.New("payload does not match the session type")
	errUnknownType     = errors.New("unknown session type")
)

// EncodePayload serializes p for storage.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, errPayloadMismatch
	}
	return json.Marshal(p)
}

// DecodePayload restores the variant of t stored in data.
func DecodePayload(t Type, data []byte) (Payload, error) {
	switch t {
	case TypeSubstitution:
		var p SubstitutionPayload
		err := json.Unmarshal(data, &p)
		return p, errors.Wrap(err, "decoding substitution payload")
	case TypeHomeworkHelp:
		var p HomeworkHelpPayload
		err := json.Unmarshal(data, &p)
		return p, errors.Wrap(err, "decoding homework help payload")
	case TypeExtraHours:
		var p ExtraHoursPayload
		err := json.Unmarshal(data, &p)
		return p, errors.Wrap(err, "decoding extra hours payload")
	case TypeOther:
		var p OtherPayload
		err := json.Unmarshal(data, &p)
		return p, errors.Wrap(err, "decoding other payload")
	}
	return nil, errors.Wrap(errUnknownType, string(t))
}
