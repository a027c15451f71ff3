package clinic

import "fmt"

type AppointmentType string

const (
	AppointmentCleaning  AppointmentType = "CLEANING"
	AppointmentCheckup   AppointmentType = "CHECKUP"
	AppointmentEmergency AppointmentType = "EMERGENCY"
	AppointmentRootCanal AppointmentType = "ROOT_CANAL"
)

var AppointmentTypes = []AppointmentType{
	AppointmentCleaning,
	AppointmentCheckup,
	AppointmentEmergency,
	AppointmentRootCanal,
}

func ParseAppointmentType(s string) (AppointmentType, error) {
	for _, t := range AppointmentTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", Errorf(KindValidation, "unknown appointment type %q", s)
}

type SlotType string

const (
	Slot1  SlotType = "SLOT_1"
	Slot2  SlotType = "SLOT_2"
	Slot3  SlotType = "SLOT_3"
	Slot4  SlotType = "SLOT_4"
	Slot5  SlotType = "SLOT_5"
	Slot6  SlotType = "SLOT_6"
	Slot7  SlotType = "SLOT_7"
	Slot8  SlotType = "SLOT_8"
	Slot9  SlotType = "SLOT_9"
	Slot10 SlotType = "SLOT_10"
)

var SlotTypes = []SlotType{Slot1, Slot2, Slot3, Slot4, Slot5, Slot6, Slot7, Slot8, Slot9, Slot10}

type PaymentMode string

const (
	PaymentCash      PaymentMode = "CASH"
	PaymentCredit    PaymentMode = "CREDIT"
	PaymentPaypal    PaymentMode = "PAYPAL"
	PaymentInsurance PaymentMode = "INSURANCE"
)

var PaymentModes = []PaymentMode{PaymentCash, PaymentCredit, PaymentPaypal, PaymentInsurance}

func ParsePaymentMode(s string) (PaymentMode, error) {
	for _, m := range PaymentModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", Errorf(KindValidation, "unknown payment mode %q", s)
}

type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

type UserType string

const (
	UserPatient UserType = "PATIENT"
	UserAdmin   UserType = "ADMIN"
)

type DestinationType string

const (
	DestinationEmail      DestinationType = "EMAIL"
	DestinationSMS        DestinationType = "SMS"
	DestinationAdminPanel DestinationType = "ADMIN_PANEL"
)

// InsuranceName is the carrier on file. InsuranceNone marks a patient without coverage.
type InsuranceName string

const (
	InsuranceNone        InsuranceName = "NONE"
	InsuranceDeltaDental InsuranceName = "DELTA_DENTAL"
	InsuranceCigna       InsuranceName = "CIGNA"
	InsuranceAetna       InsuranceName = "AETNA"
	InsuranceMetLife     InsuranceName = "METLIFE"
	InsuranceGuardian    InsuranceName = "GUARDIAN"
)

var InsuranceNames = []InsuranceName{
	InsuranceNone,
	InsuranceDeltaDental,
	InsuranceCigna,
	InsuranceAetna,
	InsuranceMetLife,
	InsuranceGuardian,
}

// FormatCents renders an amount in cents as dollars, e.g. 10050 -> "$100.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
