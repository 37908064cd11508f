package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/uberum/fleetsim/core/graph"
)

// RequestStatus tracks the lifecycle of a trip request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAssigned  RequestStatus = "assigned"
	RequestPickedUp  RequestStatus = "picked_up"
	RequestCompleted RequestStatus = "completed"
	// RequestUnservable marks a request no vehicle could reach. It is a
	// business outcome, not an error.
	RequestUnservable RequestStatus = "unservable"
)

// Request is a client trip from a pickup point to a drop-off point.
type Request struct {
	ID        string         `json:"id" yaml:"id"`
	Pickup    graph.Position `json:"pickup" yaml:"pickup"`
	Dropoff   graph.Position `json:"dropoff" yaml:"dropoff"`
	Requested time.Time      `json:"requested" yaml:"requested"`
	Status    RequestStatus  `json:"status" yaml:"status"`
	VehicleID string         `json:"vehicle_id,omitempty" yaml:"vehicle_id,omitempty"`
}

// NewRequest creates a pending request with a fresh identifier.
func NewRequest(pickup, dropoff graph.Position, at time.Time) Request {
	return Request{
		ID:        uuid.NewString(),
		Pickup:    pickup,
		Dropoff:   dropoff,
		Requested: at,
		Status:    RequestPending,
	}
}
