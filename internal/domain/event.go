package domain

import "time"

type EventType string

// Distributor events mirror changes to the pool counters; circulation events
// record patron operations.
const (
	EventDistributorHoldPlace          EventType = "distributor_hold_place"
	EventDistributorHoldRelease        EventType = "distributor_hold_release"
	EventDistributorCheckin            EventType = "distributor_checkin"
	EventDistributorCheckout           EventType = "distributor_checkout"
	EventDistributorAvailabilityNotify EventType = "distributor_availability_notify"
	EventDistributorLicenseAdd         EventType = "distributor_license_add"
	EventDistributorLicenseRemove      EventType = "distributor_license_remove"

	EventCirculationCheckout    EventType = "circulation_checkout"
	EventCirculationCheckin     EventType = "circulation_checkin"
	EventCirculationHoldPlace   EventType = "circulation_hold_place"
	EventCirculationHoldRelease EventType = "circulation_hold_release"
	EventCirculationFulfill     EventType = "circulation_fulfill"
	EventCirculationHoldExpire  EventType = "circulation_hold_expire"
)

type CirculationEvent struct {
	Type       EventType
	PoolID     string
	PatronID   string
	OldValue   int
	NewValue   int
	OccurredAt time.Time
}
