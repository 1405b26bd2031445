package email

const (
	subjectDispatchReportFmt       = "Coaching dispatch: %d sent, %d failed"
	subjectDispatchReportFailedFmt = "Coaching dispatch needs attention: %d of %d failed"
)
