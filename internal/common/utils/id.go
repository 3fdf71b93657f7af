// Package utils provides retry, identifier and duration helpers shared by
// the enrichment components.
package utils

import (
	"github.com/google/uuid"
)

// NewInvocationID returns a random identifier for one enrichment invocation.
func NewInvocationID() string {
	return uuid.NewString()
}

// NewRequestID returns a random identifier sent as X-Request-ID on outbound calls.
func NewRequestID() string {
	return uuid.NewString()
}
