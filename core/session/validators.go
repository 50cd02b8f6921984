package session

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/heures/core"
)

var (
	timeSlotTag  = "timeslot"
	timeSlotText = "invalid time slot, expected one of M1-M4 or S1-S4"

	sessionTypeTag  = "sessiontype"
	sessionTypeText = "invalid session type"

	payloadTag  = "payload"
	payloadText = "{0} must be set for this session type, and only for it"

	dateTag  = "datetime"
	dateText = "invalid date, expected YYYY-MM-DD"
)

// InitValidators registers the session validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(timeSlotTag, timeSlotValidation)
	core.RegisterCustomTranslation(validate, translator, timeSlotTag, timeSlotText)

	_ = validate.RegisterValidation(sessionTypeTag, sessionTypeValidation)
	core.RegisterCustomTranslation(validate, translator, sessionTypeTag, sessionTypeText)

	core.RegisterCustomTranslation(validate, translator, dateTag, dateText, true)

	validate.RegisterStructValidation(newSessionStructValidation, NewSession{})
	_ = validate.RegisterTranslation(
		payloadTag, translator,
		func(t ut.Translator) error { return t.Add(payloadTag, payloadText, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(payloadTag, fe.Field())
			return s
		},
	)
}

func timeSlotValidation(fl validator.FieldLevel) bool {
	return TimeSlot(fl.Field().String()).IsValid()
}

func sessionTypeValidation(fl validator.FieldLevel) bool {
	return Type(fl.Field().String()).IsValid()
}

// newSessionStructValidation checks that the payload fields match the session type.
func newSessionStructValidation(sl validator.StructLevel) {
	ns, ok := sl.Current().Interface().(NewSession)
	if !ok {
		return
	}
	wantSub := ns.Type == TypeSubstitution
	wantHH := ns.Type == TypeHomeworkHelp
	wantDesc := ns.Type == TypeExtraHours || ns.Type == TypeOther

	if (ns.Substitution != nil) != wantSub {
		sl.ReportError(ns.Substitution, "substitution", "Substitution", payloadTag, "")
	}
	if (ns.HomeworkHelp != nil) != wantHH {
		sl.ReportError(ns.HomeworkHelp, "homework_help", "HomeworkHelp", payloadTag, "")
	}
	if (ns.Description != "") != wantDesc {
		sl.ReportError(ns.Description, "description", "Description", payloadTag, "")
	}
}
