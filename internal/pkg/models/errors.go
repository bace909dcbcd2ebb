package models

import "errors"

// ErrEarlyTermination is returned by the archive worker when the cancel
// flag is observed at one of its three checkpoints. The scheduler must
// treat it as non-terminal: the assignment stays eligible for the next
// tick rather than being recorded as a failure.
var ErrEarlyTermination = errors.New("early_termination")

// ErrContractInteraction wraps a ledger RPC failure.
type ErrContractInteraction struct {
	Op  string
	Err error
}

func (e *ErrContractInteraction) Error() string {
	return "contract_interaction: " + e.Op + ": " + e.Err.Error()
}

func (e *ErrContractInteraction) Unwrap() error { return e.Err }
