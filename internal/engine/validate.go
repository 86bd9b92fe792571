package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"pulseboard/internal/domain"
	"pulseboard/internal/schedule"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("sendtime", func(fl validator.FieldLevel) bool {
		return schedule.ValidSendTime(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateReportConfig checks field rules and the period/day pairing. Every
// violation is an InvalidRangeError naming the first offending field.
func validateReportConfig(c domain.ReportConfig) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.InvalidRangeError{Field: verrs[0].Field(), Reason: describe(verrs[0])}
		}
		return err
	}
	switch c.Period {
	case domain.PeriodWeekly:
		if c.DayOfWeek == nil {
			return domain.InvalidRangeError{Field: "day_of_week", Reason: "required for weekly reports"}
		}
		if c.DayOfMonth != nil {
			return domain.InvalidRangeError{Field: "day_of_month", Reason: "not allowed for weekly reports"}
		}
	case domain.PeriodMonthly:
		if c.DayOfMonth == nil {
			return domain.InvalidRangeError{Field: "day_of_month", Reason: "required for monthly reports"}
		}
		if c.DayOfWeek != nil {
			return domain.InvalidRangeError{Field: "day_of_week", Reason: "not allowed for monthly reports"}
		}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return fmt.Sprintf("%q is not an email address", fe.Value())
	case "sendtime":
		return "must be HH:mm"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return "failed " + fe.Tag()
}

func validFormat(format string) error {
	switch format {
	case domain.FormatCSV, domain.FormatXLSX, domain.FormatJSON:
		return nil
	}
	return domain.InvalidRangeError{Field: "format", Reason: fmt.Sprintf("unsupported format %q", format)}
}
