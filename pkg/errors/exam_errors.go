package errors

import "net/http"

// Exam scheduling errors.
var (
	ErrProposalExpired    = New("PROPOSAL_EXPIRED", http.StatusGone, "exam schedule proposal expired")
	ErrScheduleInfeasible = New("SCHEDULE_INFEASIBLE", http.StatusUnprocessableEntity, "exam schedule breaks hard rules")
	ErrServiceDisabled    = New("SERVICE_DISABLED", http.StatusServiceUnavailable, "exam scheduling is disabled")
	ErrGenerationTimeout  = New("GENERATION_TIMEOUT", http.StatusGatewayTimeout, "exam schedule generation exceeded its time budget")
	ErrExportExpired      = New("EXPORT_EXPIRED", http.StatusGone, "export download link expired")
)
