package tracking

import (
	"time"

	"minibus.schoolride.org/internal/models"
)

// DefaultMorningCutoffHour splits the day: before it the morning leg runs.
const DefaultMorningCutoffHour = 12

// Windows defines the morning and evening halves of a service day.
type Windows struct {
	MorningCutoffHour int
}

func DefaultWindows() Windows {
	return Windows{MorningCutoffHour: DefaultMorningCutoffHour}
}

// Frame fixes the direction decision for one render cycle. Build one per
// cycle from a single clock reading and pass it to everything that needs
// a direction.
type Frame struct {
	Now         time.Time
	ServiceTime models.ServiceTime
}

func NewFrame(now time.Time, w Windows) Frame {
	cutoff := w.MorningCutoffHour
	if cutoff <= 0 || cutoff > 24 {
		cutoff = DefaultMorningCutoffHour
	}
	st := models.ServiceTimeMorning
	if now.Hour() >= cutoff {
		st = models.ServiceTimeEvening
	}
	return Frame{Now: now, ServiceTime: st}
}

func (f Frame) Evening() bool { return f.ServiceTime == models.ServiceTimeEvening }

// Leg returns the effective origin and destination of a booking's pickup
// and dropoff. Evening legs run dropoff to pickup. A booking covering both
// legs takes the direction of the frame.
func (f Frame) Leg(pickup, dropoff string, st models.ServiceType) (from, to string) {
	evening := st == models.ServiceEvening || (st == models.ServiceBoth && f.Evening())
	if evening {
		return dropoff, pickup
	}
	return pickup, dropoff
}

// TripLeg is Leg for a concrete trip, whose own service time decides.
func (f Frame) TripLeg(t models.Trip) (from, to string) {
	if t.ServiceTime == models.ServiceTimeEvening {
		return t.DropoffLocation, t.PickupLocation
	}
	return t.PickupLocation, t.DropoffLocation
}
