package clinic

import "time"

// SlotClock maps each slot type to its start hour (UTC).
type SlotClock struct {
	hours map[SlotType]int
}

// DefaultSlotClock starts SLOT_1 at 08:00 and each following slot one hour later.
func DefaultSlotClock() SlotClock {
	hours := make(map[SlotType]int, len(SlotTypes))
	for i, st := range SlotTypes {
		hours[st] = 8 + i
	}
	return SlotClock{hours: hours}
}

func (c SlotClock) StartHour(st SlotType) (int, error) {
	h, ok := c.hours[st]
	if !ok {
		return 0, Errorf(KindValidation, "unknown slot type %q", st)
	}
	return h, nil
}

// Timing is the instant an appointment in the given slot begins.
func (c SlotClock) Timing(date time.Time, st SlotType) (time.Time, error) {
	h, err := c.StartHour(st)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfDayUTC(date).Add(time.Duration(h) * time.Hour), nil
}

func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func EndOfDayUTC(t time.Time) time.Time {
	return StartOfDayUTC(t).Add(24*time.Hour - time.Millisecond)
}
