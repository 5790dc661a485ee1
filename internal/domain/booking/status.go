package booking

// Status is the booking lifecycle state. The set is closed: transitions are
// driven exclusively by the table in transitions.go and any status outside
// this list is rejected at the boundary.
type Status string

const (
	// active
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"

	// successful terminal
	StatusCompleted     Status = "completed"
	StatusOutOfPlatform Status = "out_of_platform"

	// no-show terminal
	StatusPatientNoShow      Status = "patient_no_show"
	StatusPsychologistNoShow Status = "psychologist_no_show"
	StatusBothNoShow         Status = "both_no_show"

	// patient-initiated
	StatusCancelledByPatientInWindow    Status = "cancelled_by_patient_in_window"
	StatusRescheduledByPatientInWindow  Status = "rescheduled_by_patient_in_window"
	StatusCancelledByPatientOutOfWindow Status = "cancelled_by_patient_out_of_window"

	// psychologist-initiated
	StatusCancelledByPsychologistInWindow     Status = "cancelled_by_psychologist_in_window"
	StatusRescheduledByPsychologistInWindow   Status = "rescheduled_by_psychologist_in_window"
	StatusCancelledByPsychologistOutOfWindow  Status = "cancelled_by_psychologist_out_of_window"
	StatusRescheduledByPsychologistOutOfWindow Status = "rescheduled_by_psychologist_out_of_window"

	// administrative and systemic
	StatusCancelledForceMajeure                  Status = "cancelled_force_majeure"
	StatusCancelledByAdministrator               Status = "cancelled_by_administrator"
	StatusPsychologistDecommissioned             Status = "psychologist_decommissioned"
	StatusSystemicCancellationPsychologistAbsent Status = "systemic_cancellation_psychologist_absent"
	StatusSystemicCancellationPatientAbsent      Status = "systemic_cancellation_patient_absent"
	StatusCancelledPatientContractBreach         Status = "cancelled_patient_contract_breach"
	StatusCancelledPsychologistContractBreach    Status = "cancelled_psychologist_contract_breach"

	// pre-confirmation
	StatusReserved  Status = "reserved"
	StatusCancelled Status = "cancelled"
)

// Actor identifies who is requesting a transition.
type Actor string

const (
	ActorPatient      Actor = "patient"
	ActorPsychologist Actor = "psychologist"
	ActorAdmin        Actor = "admin"
	ActorSystem       Actor = "system"
)

var allStatuses = map[Status]struct{}{
	StatusScheduled: {}, StatusInProgress: {},
	StatusCompleted: {}, StatusOutOfPlatform: {},
	StatusPatientNoShow: {}, StatusPsychologistNoShow: {}, StatusBothNoShow: {},
	StatusCancelledByPatientInWindow: {}, StatusRescheduledByPatientInWindow: {},
	StatusCancelledByPatientOutOfWindow: {},
	StatusCancelledByPsychologistInWindow: {}, StatusRescheduledByPsychologistInWindow: {},
	StatusCancelledByPsychologistOutOfWindow: {}, StatusRescheduledByPsychologistOutOfWindow: {},
	StatusCancelledForceMajeure: {}, StatusCancelledByAdministrator: {},
	StatusPsychologistDecommissioned: {}, StatusSystemicCancellationPsychologistAbsent: {},
	StatusSystemicCancellationPatientAbsent: {}, StatusCancelledPatientContractBreach: {},
	StatusCancelledPsychologistContractBreach: {},
	StatusReserved: {}, StatusCancelled: {},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := allStatuses[s]
	return ok
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusReserved:
		return false
	}
	return s.Valid()
}

// Active reports whether the booking still holds its slot.
func (s Status) Active() bool {
	return s == StatusReserved || s == StatusScheduled || s == StatusInProgress
}
