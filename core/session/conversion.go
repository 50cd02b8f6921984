package session

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Resolve converts an OTHER session into one of the payable categories.
// A conversion is write-once: resolving a session that already holds one fails.
func Resolve(s Session, req ConversionRequest, by string, at time.Time) (Conversion, error) {
	switch s.Payload.(type) {
	case OtherPayload:
	case SubstitutionPayload, HomeworkHelpPayload, ExtraHoursPayload:
		return Conversion{}, errors.Wrap(ErrInvalidConversion, "only OTHER sessions can be converted")
	default:
		return Conversion{}, errors.Wrap(ErrInvalidConversion, "unknown payload")
	}
	if s.Type != TypeOther {
		return Conversion{}, errors.Wrap(ErrInvalidConversion, "only OTHER sessions can be converted")
	}
	if s.Conversion != nil {
		return Conversion{}, errors.Wrap(ErrInvalidConversion, "conversion already recorded")
	}
	if req.TargetType != TypeSubstitution && req.TargetType != TypeHomeworkHelp {
		return Conversion{}, errors.Wrap(ErrInvalidConversion, "target type must be SUBSTITUTION or HOMEWORK_HELP")
	}
	if !(req.Hours > 0) || math.IsInf(req.Hours, 0) {
		return Conversion{}, errors.Wrap(ErrInvalidConversion, "hours must be greater than 0")
	}
	return Conversion{
		TargetType: req.TargetType,
		Hours:      req.Hours,
		ResolvedBy: by,
		ResolvedAt: at,
	}, nil
}
