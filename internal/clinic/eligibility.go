package clinic

import (
	"strings"
	"time"
)

// CheckVitalInfo fails with a validation error naming every missing field.
func CheckVitalInfo(fullName *string, dateOfBirth *time.Time) error {
	var missing []string
	if fullName == nil || strings.TrimSpace(*fullName) == "" {
		missing = append(missing, "fullName")
	}
	if dateOfBirth == nil || dateOfBirth.IsZero() {
		missing = append(missing, "dateOfBirth")
	}
	if len(missing) > 0 {
		return Errorf(KindValidation, "patient vital info missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func CheckInsurance(name InsuranceName, id *string) error {
	if name == "" || name == InsuranceNone {
		return Errorf(KindValidation, "patient has no insurance provider on file")
	}
	if id == nil || strings.TrimSpace(*id) == "" {
		return Errorf(KindValidation, "patient has no insurance id on file")
	}
	return nil
}
