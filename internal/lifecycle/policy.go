package lifecycle

import (
	"fmt"
	"time"
)

// Policy holds the vote thresholds, the reopen bound and the expiration
// window. Every threshold counts votes within a single phase.
type Policy struct {
	ValidationThreshold      uint32        `json:"validation_threshold"`
	RejectionThreshold       uint32        `json:"rejection_threshold"`
	VerificationThreshold    uint32        `json:"verification_threshold"`
	ReopenThreshold          uint32        `json:"reopen_threshold"`
	UpholdRejectionThreshold uint32        `json:"uphold_rejection_threshold"`
	AppealThreshold          uint32        `json:"appeal_threshold"`
	ReopenLimit              uint32        `json:"reopen_limit"`
	ExpirationTimeout        time.Duration `json:"expiration_timeout"`
}

func DefaultPolicy() Policy {
	return Policy{
		ValidationThreshold:      3,
		RejectionThreshold:       3,
		VerificationThreshold:    3,
		ReopenThreshold:          3,
		UpholdRejectionThreshold: 3,
		AppealThreshold:          3,
		ReopenLimit:              3,
		ExpirationTimeout:        30 * 24 * time.Hour,
	}
}

func (p Policy) Validate() error {
	thresholds := []struct {
		name  string
		value uint32
	}{
		{"validation", p.ValidationThreshold},
		{"rejection", p.RejectionThreshold},
		{"verification", p.VerificationThreshold},
		{"reopen", p.ReopenThreshold},
		{"uphold rejection", p.UpholdRejectionThreshold},
		{"appeal", p.AppealThreshold},
	}
	for _, t := range thresholds {
		if t.value == 0 {
			return fmt.Errorf("%w: %s threshold must be positive", ErrInvalidPolicy, t.name)
		}
	}
	if p.ReopenLimit == 0 {
		return fmt.Errorf("%w: reopen limit must be positive", ErrInvalidPolicy)
	}
	if p.ExpirationTimeout <= 0 {
		return fmt.Errorf("%w: expiration timeout must be positive", ErrInvalidPolicy)
	}
	return nil
}
