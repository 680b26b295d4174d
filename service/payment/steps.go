package payment

import (
	"fmt"
	"time"
)

// Phase is one of the two top-level stages a transaction passes through.
type Phase string

const (
	PhaseAuthorization Phase = "authorization"
	PhaseSettlement    Phase = "settlement"
)

// Step is an ordered sub-unit of a phase. Cost is the simulated processing
// cost recorded for telemetry; Wait is how long the engine actually pauses
// on the step (zero means the wait is derived from Cost via the pacing
// knobs, or measured for the broadcast/confirm steps).
type Step struct {
	Name   string
	Label  string
	Detail string
	Cost   time.Duration
	Wait   time.Duration
}

const (
	// StepBroadcast submits the transfer to the ledger (or falls back to a
	// synthetic transaction id).
	StepBroadcast = "broadcast"

	// StepConfirm waits for block inclusion and assigns the block number.
	StepConfirm = "confirm"

	// StepCreditCheck is the one authorization step whose detail is derived
	// from the record rather than static metadata.
	StepCreditCheck = "credit-check"
)

// AuthorizationSteps returns the fixed ordered authorization step list.
// None of these can reject; the demo models an always-approving issuer.
func AuthorizationSteps() []Step {
	return []Step{
		{
			Name:   "authentication",
			Label:  "Consumer Authentication",
			Detail: "Device: known • Location: San Francisco, CA • Biometric: passed",
			Cost:   12 * time.Millisecond,
		},
		{
			Name:  StepCreditCheck,
			Label: "Credit Limit Check",
			Cost:  45 * time.Millisecond,
		},
		{
			Name:   "fraud-screen",
			Label:  "Fraud Detection",
			Detail: "Risk score: 0.02/1.00 (very low) • Velocity: normal",
			Cost:   28 * time.Millisecond,
		},
		{
			Name:   "kyc-aml",
			Label:  "KYC/AML Compliance",
			Detail: "Consumer KYC: verified • Merchant KYB: verified • Sanctions: clear",
			Cost:   15 * time.Millisecond,
		},
		{
			Name:   "issuer-approval",
			Label:  "Issuing Bank Authorization",
			Detail: "Issuer: active • Response: APPROVED",
			Cost:   67 * time.Millisecond,
		},
	}
}

// SettlementSteps returns the fixed ordered settlement step list. The
// broadcast and confirm steps have no fixed cost; their durations are
// measured at run time.
func SettlementSteps() []Step {
	return []Step{
		{
			Name:  "treasury-check",
			Label: "Treasury Wallet Check",
			Cost:  5 * time.Millisecond,
			Wait:  300 * time.Millisecond,
		},
		{
			Name:  "prepare",
			Label: "Transaction Preparation",
			Cost:  8 * time.Millisecond,
			Wait:  300 * time.Millisecond,
		},
		{
			Name:  StepBroadcast,
			Label: "Broadcasting Transfer",
		},
		{
			Name:  StepConfirm,
			Label: "Block Confirmation",
			Wait:  800 * time.Millisecond,
		},
	}
}

// creditCheckDetail renders the derived credit-check line for a record.
func creditCheckDetail(creditLimitCents, finalAmountCents int64) string {
	available := creditLimitCents - finalAmountCents
	return fmt.Sprintf("Limit: %s • Available after purchase: %s",
		FormatUSD(creditLimitCents), FormatUSD(available))
}
