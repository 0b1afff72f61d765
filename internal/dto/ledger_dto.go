package dto

import (
	"time"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
	"github.com/civicledger/civic-ledger/internal/models"
)

type SubmitReportRequest struct {
	EvidenceReference   string `json:"evidence_reference" validate:"required,max=2048"`
	SubmissionNullifier string `json:"submission_nullifier" validate:"required,nullifier"`
	Description         string `json:"description,omitempty" validate:"max=5000"`
	ModerationSignature string `json:"moderation_signature,omitempty" validate:"omitempty,hexadecimal"`
}

type SubmitReportResponse struct {
	ID uint64 `json:"id"`
}

type VoteRequest struct {
	Support         bool   `json:"support"`
	VotingNullifier string `json:"voting_nullifier" validate:"required,nullifier"`
	Phase           string `json:"phase" validate:"required,phase"`
}

type ReportResponse struct {
	ID                  uint64    `json:"id"`
	EvidenceReference   string    `json:"evidence_reference"`
	SubmissionNullifier string    `json:"submission_nullifier"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	ActionedBy          string    `json:"actioned_by"`
	VotesFor            uint32    `json:"votes_for"`
	VotesAgainst        uint32    `json:"votes_against"`
	ReopenCount         uint32    `json:"reopen_count"`
}

func NewReportResponse(r lifecycle.Report) ReportResponse {
	return ReportResponse{
		ID:                  uint64(r.ID),
		EvidenceReference:   r.EvidenceReference,
		SubmissionNullifier: r.SubmissionNullifier.String(),
		Status:              r.Status.String(),
		CreatedAt:           r.CreatedAt,
		ExpiresAt:           r.ExpiresAt,
		ActionedBy:          r.ActionedBy.String(),
		VotesFor:            r.VotesFor,
		VotesAgainst:        r.VotesAgainst,
		ReopenCount:         r.ReopenCount,
	}
}

type ReportListResponse struct {
	Reports []models.ReportView `json:"reports"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

type ReportHistoryResponse struct {
	ReportID uint64                  `json:"report_id"`
	Events   []models.LifecycleEvent `json:"events"`
}

type GrantResponse struct {
	Principal  string `json:"principal"`
	Capability string `json:"capability"`
	Granted    bool   `json:"granted"`
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   string         `json:"timestamp"`
	DB          string         `json:"db"`
	JournalHead uint64         `json:"journal_head"`
	JournalHash string         `json:"journal_hash,omitempty"`
	Reports     int            `json:"reports"`
	ByStatus    map[string]int `json:"by_status"`
	Grants      int            `json:"grants"`
}

type PolicyResponse struct {
	ValidationThreshold      uint32 `json:"validation_threshold"`
	RejectionThreshold       uint32 `json:"rejection_threshold"`
	VerificationThreshold    uint32 `json:"verification_threshold"`
	ReopenThreshold          uint32 `json:"reopen_threshold"`
	UpholdRejectionThreshold uint32 `json:"uphold_rejection_threshold"`
	AppealThreshold          uint32 `json:"appeal_threshold"`
	ReopenLimit              uint32 `json:"reopen_limit"`
	ExpirationTimeout        string `json:"expiration_timeout"`
	ExpirationSeconds        int64  `json:"expiration_seconds"`
}

func NewPolicyResponse(p lifecycle.Policy) PolicyResponse {
	return PolicyResponse{
		ValidationThreshold:      p.ValidationThreshold,
		RejectionThreshold:       p.RejectionThreshold,
		VerificationThreshold:    p.VerificationThreshold,
		ReopenThreshold:          p.ReopenThreshold,
		UpholdRejectionThreshold: p.UpholdRejectionThreshold,
		AppealThreshold:          p.AppealThreshold,
		ReopenLimit:              p.ReopenLimit,
		ExpirationTimeout:        p.ExpirationTimeout.String(),
		ExpirationSeconds:        int64(p.ExpirationTimeout.Seconds()),
	}
}
