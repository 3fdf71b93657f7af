package enrichment

import (
	"metadata-enricher/internal/common/errors"
	"metadata-enricher/internal/normalizer"
)

// Status is the terminal state of an invocation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusNoMatch   Status = "no_match"
	StatusAuthError Status = "auth_error"
	StatusError     Status = "error"
)

// Stages of an invocation, used in results, logs and metrics.
const (
	StageConfig      = "config"
	StageCorrelation = "correlation"
	StageCredentials = "credentials"
	StageAuth        = "auth"
	StageFetch       = "fetch"
	StageNormalize   = "normalize"
)

// Result is everything an invocation reports to its caller.
type Result struct {
	Status           Status               `json:"status"`
	EnrichmentStatus Status               `json:"enrichment_status"`
	InvocationID     string               `json:"invocation_id"`
	CorrelationID    string               `json:"correlation_id,omitempty"`
	Normalized       *normalizer.Metadata `json:"normalized,omitempty"`
	Error            *ResultError         `json:"error,omitempty"`
	Attempts         Attempts             `json:"attempts"`
	DurationMS       int64                `json:"duration_ms"`
	ConfigConflicts  []string             `json:"config_conflicts,omitempty"`
}

// ResultError describes why an invocation did not succeed.
type ResultError struct {
	Type       string `json:"type"`
	Stage      string `json:"stage"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

// Attempts counts network attempts per stage.
type Attempts struct {
	Auth  int `json:"auth"`
	Fetch int `json:"fetch"`
}

// StatusFor maps a stage error onto a terminal status. Cancellation and
// configuration errors are always error; credential and auth stage
// failures are auth_error; in the fetch stage not found is no_match and a
// rejected credential is auth_error.
func StatusFor(stage string, err error) Status {
	if err == nil {
		return StatusSuccess
	}

	errType := errors.GetType(err)
	switch errType {
	case errors.ErrTypeCancelled, errors.ErrTypeConfig, errors.ErrTypeInternal:
		return StatusError
	}

	switch stage {
	case StageCorrelation:
		return StatusNoMatch
	case StageCredentials, StageAuth:
		return StatusAuthError
	}

	switch errType {
	case errors.ErrTypeNotFound:
		return StatusNoMatch
	case errors.ErrTypeAuth, errors.ErrTypeSecretNotFound, errors.ErrTypeSecretMalformed, errors.ErrTypeSecretNamespace:
		return StatusAuthError
	default:
		return StatusError
	}
}

func newResultError(stage string, err error) *ResultError {
	re := &ResultError{
		Type:       string(errors.GetType(err)),
		Stage:      stage,
		Message:    err.Error(),
		HTTPStatus: errors.StatusCode(err),
	}
	if re.Type == "" {
		re.Type = string(errors.ErrTypeInternal)
	}
	return re
}
