package resilience

import (
	"go.uber.org/zap"
)

// DeadLetter records row ids whose write still failed after the batch write
// fell back to per-row writes. Dead letters are reported, never dropped
// silently; the rows stay untouched so a later run can pick them up again.
type DeadLetter struct {
	Operation string   `json:"operation"`
	Table     string   `json:"table"`
	IDs       []string `json:"ids"`
	Error     string   `json:"error"`
	ErrorType string   `json:"error_type"` // "transient", "validation" or "permanent"
}

// NewDeadLetter builds a DeadLetter for ids that failed with err.
func NewDeadLetter(operation, table string, ids []string, err error) DeadLetter {
	dl := DeadLetter{
		Operation: operation,
		Table:     table,
		IDs:       ids,
		ErrorType: ClassifyError(err),
	}
	if err != nil {
		dl.Error = err.Error()
	}
	return dl
}

// ClassifyError categorizes an error as "transient", "validation" or "permanent".
func ClassifyError(err error) string {
	switch {
	case IsValidation(err):
		return "validation"
	case IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}

// Log writes the dead letter at warn level.
func (d DeadLetter) Log(log *zap.Logger) {
	log.Warn("rows failed after per-row fallback",
		zap.String("operation", d.Operation),
		zap.String("table", d.Table),
		zap.Strings("ids", d.IDs),
		zap.String("error_type", d.ErrorType),
		zap.String("error", d.Error),
	)
}
