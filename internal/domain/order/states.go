package order

import "billing-lifecycle/internal/statemachine"

type Status string

const (
	StatusPending   Status = "Pending"
	StatusTrial     Status = "Trial"
	StatusActive    Status = "Active"
	StatusSuspended Status = "Suspended"
	StatusCancelled Status = "Cancelled"
	StatusExpired   Status = "Expired"
)

type Transition string

const (
	Activate Transition = "Activate"
	Suspend  Transition = "Suspend"
	Resume   Transition = "Resume"
	Cancel   Transition = "Cancel"
	Expire   Transition = "Expire"
	Renew    Transition = "Renew"
)

type Machine = statemachine.Machine[Status, Transition]

type edge = statemachine.Transition[Status, Transition]

// NewMachine builds the order lifecycle table.
func NewMachine() *Machine {
	return statemachine.MustNew("order",
		[]Status{StatusPending, StatusTrial, StatusActive, StatusSuspended, StatusCancelled, StatusExpired},
		[]edge{
			{From: StatusPending, Name: Activate, To: StatusActive},
			{From: StatusPending, Name: Suspend, To: StatusSuspended},
			{From: StatusPending, Name: Cancel, To: StatusCancelled},

			{From: StatusTrial, Name: Activate, To: StatusActive},
			{From: StatusTrial, Name: Cancel, To: StatusCancelled},
			{From: StatusTrial, Name: Expire, To: StatusExpired},

			{From: StatusActive, Name: Suspend, To: StatusSuspended},
			{From: StatusActive, Name: Cancel, To: StatusCancelled},
			{From: StatusActive, Name: Expire, To: StatusExpired},
			{From: StatusActive, Name: Renew, To: StatusActive},

			{From: StatusSuspended, Name: Resume, To: StatusActive},
			{From: StatusSuspended, Name: Cancel, To: StatusCancelled},
			{From: StatusSuspended, Name: Expire, To: StatusExpired},

			{From: StatusExpired, Name: Renew, To: StatusActive},
			{From: StatusExpired, Name: Cancel, To: StatusCancelled},
		},
	)
}

// Transitions lists every transition name of the order lifecycle.
func Transitions() []Transition {
	return []Transition{Activate, Suspend, Resume, Cancel, Expire, Renew}
}
