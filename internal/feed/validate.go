package feed

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateRun checks the run-level fields only. Visits are checked one by one
// with ValidateVisit so a single bad visit does not drop the whole run.
func ValidateRun(r Run) error {
	return validate.Struct(r)
}

func ValidateVisit(v StationVisit) error {
	return validate.Struct(v)
}
