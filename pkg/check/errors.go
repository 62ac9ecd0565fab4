package check

import "log/slog"

// ErrorHandler is called for every failed query
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates an error handler
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle counts the failure and drops the connection so the remaining
// queries of the cycle do not reuse it. err is returned unchanged.
func (h *ErrorHandler) Handle(rc *RunContext, err error) error {
	rc.RecordError()
	if conn := rc.Conn(); conn != nil {
		if cerr := conn.Close(); cerr != nil {
			h.logger.Warn("Couldn't close the connection after a query failure", "error", cerr)
		}
	}
	rc.detach()
	return err
}
