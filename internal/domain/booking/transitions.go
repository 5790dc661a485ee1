package booking

import "errors"

// ErrInvalidTransition is returned for any transition not present in the
// policy table. The machine fails closed: nothing about the booking, its
// slot or its credit changes when this error is returned.
var ErrInvalidTransition = errors.New("transition not permitted from current status")

// Effects are the side effects the orchestrator must apply alongside a
// status change. ReleaseSlot re-offers the window, CancelSlot retires it.
type Effects struct {
	ReleaseSlot   bool
	CancelSlot    bool
	ReturnCredit  bool
	ForfeitCredit bool
	IssuePayout   bool
	IssuePenalty  bool
}

// Overrides are the administrative escape hatch: when set they replace the
// policy-computed payout and credit decisions for the transition.
type Overrides struct {
	Payout       *bool
	CreditReturn *bool
}

// Forced reports whether any override flag is present, so the caller can
// record the intervention as its own ledger event.
func (o Overrides) Forced() bool {
	return o.Payout != nil || o.CreditReturn != nil
}

type rule struct {
	actors  map[Actor]bool
	effects Effects
}

func anyOf(actors ...Actor) map[Actor]bool {
	m := make(map[Actor]bool, len(actors))
	for _, a := range actors {
		m[a] = true
	}
	return m
}

// terminalRules maps each terminal target reachable from Scheduled to who
// may request it and what follows. Admin is implicitly allowed everywhere.
var terminalRules = map[Status]rule{
	StatusCompleted: {
		actors:  anyOf(ActorAdmin),
		effects: Effects{IssuePayout: true},
	},
	StatusOutOfPlatform: {
		// session happened off the platform: the credit stays spent and
		// the provider is still paid for the hour
		actors:  anyOf(ActorAdmin),
		effects: Effects{IssuePayout: true},
	},
	StatusCancelledByPatientInWindow: {
		actors:  anyOf(ActorPatient),
		effects: Effects{ReleaseSlot: true, ReturnCredit: true},
	},
	StatusRescheduledByPatientInWindow: {
		actors:  anyOf(ActorPatient),
		effects: Effects{ReleaseSlot: true, ReturnCredit: true},
	},
	StatusCancelledByPatientOutOfWindow: {
		actors:  anyOf(ActorPatient),
		effects: Effects{ReleaseSlot: true, ForfeitCredit: true, IssuePayout: true},
	},
	StatusCancelledByPsychologistInWindow: {
		actors:  anyOf(ActorPsychologist),
		effects: Effects{CancelSlot: true, ReturnCredit: true},
	},
	StatusRescheduledByPsychologistInWindow: {
		actors:  anyOf(ActorPsychologist),
		effects: Effects{CancelSlot: true, ReturnCredit: true},
	},
	StatusCancelledByPsychologistOutOfWindow: {
		actors:  anyOf(ActorPsychologist),
		effects: Effects{CancelSlot: true, ReturnCredit: true, IssuePenalty: true},
	},
	StatusRescheduledByPsychologistOutOfWindow: {
		actors:  anyOf(ActorPsychologist),
		effects: Effects{CancelSlot: true, ReturnCredit: true, IssuePenalty: true},
	},
	StatusPatientNoShow: {
		actors:  anyOf(ActorPsychologist, ActorSystem),
		effects: Effects{ForfeitCredit: true, IssuePayout: true},
	},
	StatusPsychologistNoShow: {
		actors:  anyOf(ActorPatient, ActorSystem),
		effects: Effects{ReturnCredit: true, IssuePenalty: true},
	},
	StatusBothNoShow: {
		actors:  anyOf(ActorSystem),
		effects: Effects{ReturnCredit: true},
	},
	StatusCancelledForceMajeure: {
		actors:  anyOf(ActorAdmin),
		effects: Effects{ReleaseSlot: true, ReturnCredit: true},
	},
	StatusCancelledByAdministrator: {
		actors:  anyOf(ActorAdmin),
		effects: Effects{ReleaseSlot: true, ReturnCredit: true},
	},
	StatusPsychologistDecommissioned: {
		actors:  anyOf(ActorAdmin, ActorSystem),
		effects: Effects{CancelSlot: true, ReturnCredit: true},
	},
	StatusSystemicCancellationPsychologistAbsent: {
		actors:  anyOf(ActorSystem),
		effects: Effects{CancelSlot: true, ReturnCredit: true, IssuePenalty: true},
	},
	StatusSystemicCancellationPatientAbsent: {
		actors:  anyOf(ActorSystem),
		effects: Effects{ForfeitCredit: true, IssuePayout: true},
	},
	StatusCancelledPatientContractBreach: {
		actors:  anyOf(ActorAdmin),
		effects: Effects{ReleaseSlot: true, ForfeitCredit: true, IssuePayout: true},
	},
	StatusCancelledPsychologistContractBreach: {
		actors:  anyOf(ActorAdmin),
		effects: Effects{CancelSlot: true, ReturnCredit: true, IssuePenalty: true},
	},
}

// windowPairs normalizes patient and psychologist cancellations to the
// variant the notice window actually dictates, so callers may request
// either form of the pair.
var windowPairs = map[Status][2]Status{
	StatusCancelledByPatientInWindow:          {StatusCancelledByPatientInWindow, StatusCancelledByPatientOutOfWindow},
	StatusCancelledByPatientOutOfWindow:       {StatusCancelledByPatientInWindow, StatusCancelledByPatientOutOfWindow},
	StatusCancelledByPsychologistInWindow:     {StatusCancelledByPsychologistInWindow, StatusCancelledByPsychologistOutOfWindow},
	StatusCancelledByPsychologistOutOfWindow:  {StatusCancelledByPsychologistInWindow, StatusCancelledByPsychologistOutOfWindow},
	StatusRescheduledByPatientInWindow:        {StatusRescheduledByPatientInWindow, StatusCancelledByPatientOutOfWindow},
	StatusRescheduledByPsychologistInWindow:   {StatusRescheduledByPsychologistInWindow, StatusRescheduledByPsychologistOutOfWindow},
	StatusRescheduledByPsychologistOutOfWindow: {StatusRescheduledByPsychologistInWindow, StatusRescheduledByPsychologistOutOfWindow},
}

// Decide resolves a requested transition against the policy table. It
// returns the status actually entered (window pairs are normalized) and
// the side effects to apply. Any combination not present in the table is
// rejected with ErrInvalidTransition.
func Decide(current, requested Status, actor Actor, insideWindow bool) (Status, Effects, error) {
	if !requested.Valid() {
		return current, Effects{}, ErrInvalidTransition
	}

	switch current {
	case StatusReserved:
		return decideFromReserved(requested, actor)
	case StatusScheduled:
		return decideFromScheduled(requested, actor, insideWindow)
	case StatusInProgress:
		return decideFromInProgress(requested, actor)
	default:
		// terminal states accept nothing
		return current, Effects{}, ErrInvalidTransition
	}
}

func decideFromReserved(requested Status, actor Actor) (Status, Effects, error) {
	switch requested {
	case StatusScheduled:
		if actor == ActorSystem || actor == ActorAdmin {
			return StatusScheduled, Effects{}, nil
		}
	case StatusCancelled:
		// confirmation never happened, undo everything
		return StatusCancelled, Effects{ReleaseSlot: true, ReturnCredit: true}, nil
	}
	return StatusReserved, Effects{}, ErrInvalidTransition
}

func decideFromScheduled(requested Status, actor Actor, insideWindow bool) (Status, Effects, error) {
	if requested == StatusInProgress {
		if actor == ActorSystem || actor == ActorPsychologist || actor == ActorAdmin {
			return StatusInProgress, Effects{}, nil
		}
		return StatusScheduled, Effects{}, ErrInvalidTransition
	}

	target := requested
	if pair, ok := windowPairs[requested]; ok && actor != ActorAdmin {
		if insideWindow {
			target = pair[0]
		} else {
			target = pair[1]
		}
	}

	r, ok := terminalRules[target]
	if !ok {
		return StatusScheduled, Effects{}, ErrInvalidTransition
	}
	if actor != ActorAdmin && !r.actors[actor] {
		return StatusScheduled, Effects{}, ErrInvalidTransition
	}
	return target, r.effects, nil
}

func decideFromInProgress(requested Status, actor Actor) (Status, Effects, error) {
	switch requested {
	case StatusCompleted:
		if actor == ActorSystem || actor == ActorPsychologist || actor == ActorAdmin {
			return StatusCompleted, Effects{IssuePayout: true}, nil
		}
	case StatusOutOfPlatform:
		if actor == ActorAdmin {
			return StatusOutOfPlatform, Effects{IssuePayout: true}, nil
		}
	}
	return StatusInProgress, Effects{}, ErrInvalidTransition
}

// ApplyOverrides replaces the policy-computed payout and credit decisions
// with the administrator's. A forced credit return cancels a forfeiture and
// vice versa.
func ApplyOverrides(eff Effects, ov Overrides) Effects {
	if ov.Payout != nil {
		eff.IssuePayout = *ov.Payout
	}
	if ov.CreditReturn != nil {
		eff.ReturnCredit = *ov.CreditReturn
		if *ov.CreditReturn {
			eff.ForfeitCredit = false
		} else {
			eff.ForfeitCredit = true
		}
	}
	return eff
}
