package domainname

import "billing-lifecycle/internal/statemachine"

type Status string

const (
	StatusPendingRegistration Status = "PendingRegistration"
	StatusActive              Status = "Active"
	StatusSuspended           Status = "Suspended"
	StatusPendingTransfer     Status = "PendingTransfer"
	StatusPendingRenewal      Status = "PendingRenewal"
	StatusExpired             Status = "Expired"
	StatusCancelled           Status = "Cancelled"
	StatusTransferredOut      Status = "TransferredOut"
)

type Transition string

const (
	Register    Transition = "Register"
	Suspend     Transition = "Suspend"
	Reactivate  Transition = "Reactivate"
	Renew       Transition = "Renew"
	Expire      Transition = "Expire"
	Cancel      Transition = "Cancel"
	TransferIn  Transition = "TransferIn"
	TransferOut Transition = "TransferOut"
)

type Machine = statemachine.Machine[Status, Transition]

type edge = statemachine.Transition[Status, Transition]

// NewMachine builds the domain name lifecycle table. Cancelled and
// TransferredOut have no outgoing edges.
func NewMachine() *Machine {
	return statemachine.MustNew("domain",
		[]Status{
			StatusPendingRegistration, StatusActive, StatusSuspended, StatusPendingTransfer,
			StatusPendingRenewal, StatusExpired, StatusCancelled, StatusTransferredOut,
		},
		[]edge{
			{From: StatusPendingRegistration, Name: Register, To: StatusActive},
			{From: StatusPendingRegistration, Name: Cancel, To: StatusCancelled},

			{From: StatusActive, Name: Suspend, To: StatusSuspended},
			{From: StatusActive, Name: Renew, To: StatusActive},
			{From: StatusActive, Name: Expire, To: StatusExpired},
			{From: StatusActive, Name: Cancel, To: StatusCancelled},
			{From: StatusActive, Name: TransferOut, To: StatusTransferredOut},

			{From: StatusSuspended, Name: Reactivate, To: StatusActive},
			{From: StatusSuspended, Name: Expire, To: StatusExpired},
			{From: StatusSuspended, Name: Cancel, To: StatusCancelled},

			{From: StatusPendingTransfer, Name: TransferIn, To: StatusActive},
			{From: StatusPendingTransfer, Name: Cancel, To: StatusCancelled},

			{From: StatusPendingRenewal, Name: Renew, To: StatusActive},
			{From: StatusPendingRenewal, Name: Expire, To: StatusExpired},
			{From: StatusPendingRenewal, Name: Cancel, To: StatusCancelled},

			{From: StatusExpired, Name: Renew, To: StatusActive},
			{From: StatusExpired, Name: Cancel, To: StatusCancelled},
		},
	)
}

func Transitions() []Transition {
	return []Transition{Register, Suspend, Reactivate, Renew, Expire, Cancel, TransferIn, TransferOut}
}
