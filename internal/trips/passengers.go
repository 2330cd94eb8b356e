package trips

import (
	"minibus.schoolride.org/internal/fault"
	"minibus.schoolride.org/internal/models"
)

// passengerTransitions lists every allowed per-passenger move.
var passengerTransitions = map[models.PassengerStatus][]models.PassengerStatus{
	models.PassengerPending:  {models.PassengerPickedUp, models.PassengerAbsent},
	models.PassengerPickedUp: {models.PassengerDroppedOff},
}

// CanMark reports whether a passenger may move from one status to another.
func CanMark(from, to models.PassengerStatus) bool {
	for _, allowed := range passengerTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// knownPassengers returns the passenger list of a trip that accepts marks.
func knownPassengers(s *tripState) (Known, error) {
	if s.trip.Status.Terminal() {
		return Known{}, reject(TransitionMark, string(s.trip.Status), "trip is "+string(s.trip.Status))
	}
	known, ok := s.detail.(Known)
	if !ok {
		return Known{}, reject(TransitionMark, string(s.trip.Status), "passenger list not loaded")
	}
	return known, nil
}

func (m *Manager) stamp(p *models.Passenger, status models.PassengerStatus) {
	p.Status = status
	switch status {
	case models.PassengerPickedUp:
		p.PickedUpAt = m.now()
	case models.PassengerDroppedOff:
		p.DroppedOffAt = m.now()
	}
}

// MarkPassenger applies one guarded passenger transition.
func (m *Manager) MarkPassenger(tripID, passengerID int, status models.PassengerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(tripID)
	if err != nil {
		return err
	}
	known, err := knownPassengers(s)
	if err != nil {
		return err
	}
	for i := range known.Passengers {
		p := &known.Passengers[i]
		if p.ID != passengerID {
			continue
		}
		if !CanMark(p.Status, status) {
			return reject(TransitionMark, string(p.Status), "cannot become "+string(status))
		}
		m.stamp(p, status)
		return nil
	}
	return fault.InputError{Field: "passenger_id", Reason: "unknown passenger"}
}

// MarkAllPending moves every pending passenger of a trip to status and
// returns how many changed. Passengers in any other status are untouched.
func (m *Manager) MarkAllPending(tripID int, status models.PassengerStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !CanMark(models.PassengerPending, status) {
		return 0, reject(TransitionMark, string(models.PassengerPending), "cannot become "+string(status))
	}
	s, err := m.lookup(tripID)
	if err != nil {
		return 0, err
	}
	known, err := knownPassengers(s)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range known.Passengers {
		if known.Passengers[i].Status == models.PassengerPending {
			m.stamp(&known.Passengers[i], status)
			changed++
		}
	}
	return changed, nil
}
