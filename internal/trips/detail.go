package trips

import "minibus.schoolride.org/internal/models"

// PassengerDetail is what is known about the people on a trip: either the
// full passenger list or only the booked seat count.
type PassengerDetail interface {
	isPassengerDetail()
}

// Known carries the loaded passenger list.
type Known struct {
	Passengers []models.Passenger
}

// Approximate stands in for a trip whose passenger list was never loaded.
type Approximate struct {
	Count int
}

func (Known) isPassengerDetail()       {}
func (Approximate) isPassengerDetail() {}

func cloneDetail(d PassengerDetail) PassengerDetail {
	switch v := d.(type) {
	case Known:
		return Known{Passengers: clonePassengers(v.Passengers)}
	case Approximate:
		return v
	}
	return nil
}

func clonePassengers(in []models.Passenger) []models.Passenger {
	if in == nil {
		return nil
	}
	out := make([]models.Passenger, len(in))
	for i, p := range in {
		out[i] = p
		if p.PickedUpAt != nil {
			t := *p.PickedUpAt
			out[i].PickedUpAt = &t
		}
		if p.DroppedOffAt != nil {
			t := *p.DroppedOffAt
			out[i].DroppedOffAt = &t
		}
	}
	return out
}

// Counts are passenger aggregates. Approximate is set when at least one trip
// contributed its booked seats instead of a passenger list.
type Counts struct {
	Onboard     int  `json:"onboard"`
	Pending     int  `json:"pending"`
	DroppedOff  int  `json:"dropped_off"`
	Absent      int  `json:"absent"`
	Approximate bool `json:"approximate"`
}

// Total is the number of passengers or seats accounted for.
func (c Counts) Total() int {
	return c.Onboard + c.Pending + c.DroppedOff + c.Absent
}

func (c *Counts) add(o Counts) {
	c.Onboard += o.Onboard
	c.Pending += o.Pending
	c.DroppedOff += o.DroppedOff
	c.Absent += o.Absent
	c.Approximate = c.Approximate || o.Approximate
}

// countTrip derives the aggregates of one trip. Cancelled trips carry
// nobody. Onboard passengers only count while the trip is under way.
func countTrip(trip models.Trip, detail PassengerDetail) Counts {
	if trip.Status == models.TripCancelled {
		return Counts{}
	}
	var c Counts
	switch d := detail.(type) {
	case Known:
		for _, p := range d.Passengers {
			switch p.Status {
			case models.PassengerPending:
				c.Pending++
			case models.PassengerPickedUp:
				if trip.Status == models.TripPickedUp {
					c.Onboard++
				}
			case models.PassengerDroppedOff:
				c.DroppedOff++
			case models.PassengerAbsent:
				c.Absent++
			}
		}
	case Approximate:
		c.Approximate = true
		switch trip.Status {
		case models.TripScheduled:
			c.Pending = d.Count
		case models.TripPickedUp:
			c.Onboard = d.Count
		case models.TripCompleted:
			c.DroppedOff = d.Count
		}
	}
	return c
}
