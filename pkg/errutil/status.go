package errutil

import (
	"errors"
	"net/http"
)

type CoreStatus string

const (
	StatusUnknown             CoreStatus = "UNKNOWN"
	StatusBadRequest          CoreStatus = "BAD_REQUEST"
	StatusValidationFailed    CoreStatus = "VALIDATION_FAILED"
	StatusUnauthorized        CoreStatus = "UNAUTHORIZED"
	StatusForbidden           CoreStatus = "FORBIDDEN"
	StatusNotFound            CoreStatus = "NOT_FOUND"
	StatusConflict            CoreStatus = "CONFLICT"
	StatusTimeout             CoreStatus = "TIMEOUT"
	StatusTooManyRequests     CoreStatus = "TOO_MANY_REQUESTS"
	StatusInternal            CoreStatus = "INTERNAL"
	StatusNotImplemented      CoreStatus = "NOT_IMPLEMENTED"
	StatusBadGateway          CoreStatus = "BAD_GATEWAY"
	StatusServiceUnavailable  CoreStatus = "SERVICE_UNAVAILABLE"
	StatusGatewayTimeout      CoreStatus = "GATEWAY_TIMEOUT"
	StatusClientClosedRequest CoreStatus = "CLIENT_CLOSED_REQUEST"

	// Intake and ledger taxonomy. These carry domain meaning beyond their
	// HTTP mapping; callers branch on them with HasStatus.
	StatusUnknownParticipant CoreStatus = "UNKNOWN_PARTICIPANT"
	StatusEmptyPayload       CoreStatus = "EMPTY_PAYLOAD"
	StatusDuplicateDetected  CoreStatus = "DUPLICATE_DETECTED"
	StatusOracleUnavailable  CoreStatus = "ORACLE_UNAVAILABLE"
	StatusTransientStore     CoreStatus = "TRANSIENT_STORE_ERROR"
	StatusSchemaMismatch     CoreStatus = "SCHEMA_MISMATCH"
	StatusInvalidAdjustment  CoreStatus = "INVALID_ADJUSTMENT"
)

// HTTPStatus maps a CoreStatus to the status code rendered by the HTTP error
// middleware.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed, StatusEmptyPayload, StatusInvalidAdjustment:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound, StatusUnknownParticipant:
		return http.StatusNotFound
	case StatusConflict, StatusDuplicateDetected:
		return http.StatusConflict
	case StatusTimeout:
		return http.StatusRequestTimeout
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusBadGateway, StatusOracleUnavailable:
		return http.StatusBadGateway
	case StatusServiceUnavailable, StatusTransientStore:
		return http.StatusServiceUnavailable
	case StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	case StatusClientClosedRequest:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf extracts the CoreStatus from any error produced by this package.
// Errors from other sources report StatusUnknown.
func StatusOf(err error) CoreStatus {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return StatusUnknown
}

func HasStatus(err error, status CoreStatus) bool {
	return StatusOf(err) == status
}
