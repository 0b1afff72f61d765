package lifecycle

import "errors"

var (
	ErrAccessDenied          = errors.New("access denied")
	ErrDuplicateSubmission   = errors.New("duplicate submission")
	ErrDuplicateVote         = errors.New("duplicate vote")
	ErrReportNotFound        = errors.New("report not found")
	ErrReportExpired         = errors.New("report expired")
	ErrWrongPhaseForStatus   = errors.New("wrong phase for status")
	ErrInvalidStateForAction = errors.New("invalid state for action")
	ErrInvalidPhase          = errors.New("invalid phase")
	ErrInvalidCapability     = errors.New("invalid capability")
	ErrInvalidPolicy         = errors.New("invalid threshold policy")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrAccessDenied, "ACCESS_DENIED"},
	{ErrDuplicateSubmission, "DUPLICATE_SUBMISSION"},
	{ErrDuplicateVote, "DUPLICATE_VOTE"},
	{ErrReportNotFound, "REPORT_NOT_FOUND"},
	{ErrReportExpired, "REPORT_EXPIRED"},
	{ErrWrongPhaseForStatus, "WRONG_PHASE_FOR_STATUS"},
	{ErrInvalidStateForAction, "INVALID_STATE_FOR_ACTION"},
	{ErrInvalidPhase, "INVALID_PHASE"},
	{ErrInvalidCapability, "INVALID_CAPABILITY"},
	{ErrInvalidPolicy, "INVALID_POLICY"},
}

// ErrorCode returns a stable machine-readable code for err, "OK" for nil and
// "INTERNAL" for errors outside the lifecycle taxonomy.
func ErrorCode(err error) string {
	if err == nil {
		return "OK"
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}
