package errors

import (
	"github.com/sirupsen/logrus"
)

// Fields returns the structured log fields carried by an AppError.
func Fields(err error) logrus.Fields {
	fields := logrus.Fields{}
	appErr, ok := As(err)
	if !ok {
		return fields
	}

	fields["error_code"] = appErr.Code
	fields["retryable"] = appErr.Retryable
	for k, v := range appErr.Context {
		// message bodies never reach the log sink
		if k == "content" {
			continue
		}
		fields[k] = v
	}
	return fields
}

// WithError attaches err and its structured context to a log entry.
func WithError(logger logrus.FieldLogger, err error) *logrus.Entry {
	return logger.WithError(err).WithFields(Fields(err))
}

// Log logs a retryable error at warn level and everything else at error level.
// Validation failures are expected user mistakes and are logged at info.
func Log(logger logrus.FieldLogger, err error, message string, fields ...logrus.Fields) {
	entry := WithError(logger, err)
	for _, f := range fields {
		entry = entry.WithFields(f)
	}

	switch {
	case IsRetryable(err):
		entry.Warn(message)
	case isUserError(err):
		entry.Info(message)
	default:
		entry.Error(message)
	}
}

func isUserError(err error) bool {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeEmptyMessage,
		ErrCodeNoActiveThread, ErrCodeNotMessageOwner, ErrCodeExternalChannel,
		ErrCodeThreadNotFound, ErrCodeMessageNotFound, ErrCodeAuthorization:
		return true
	}
	return false
}
