package recovery

import (
	"context"
	"errors"
)

const (
	auditEventRecoveryIssue   = "recovery_issue"
	auditEventRecoveryVerify  = "recovery_verify"
	auditEventRecoveryConsume = "recovery_consume"
	auditEventRecoveryLockout = "recovery_lockout"
	auditEventRateLimitHit    = "rate_limit_triggered"
)

// AuditErrorCode is the stable error label stamped into audit events.
type AuditErrorCode string

const (
	auditErrNotFound         AuditErrorCode = "not_found"
	auditErrCodeExpired      AuditErrorCode = "code_expired"
	auditErrCodeInvalid      AuditErrorCode = "code_invalid"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrThrottled        AuditErrorCode = "issue_throttled"
	auditErrNotification     AuditErrorCode = "notification_failed"
	auditErrCredentialUpdate AuditErrorCode = "credential_update_failed"
	auditErrStoreUnavailable AuditErrorCode = "store_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	issueID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IssueID:   issueID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, accountID string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitHit, false, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"scope": scope,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrRecoveryNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrCodeInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrIssueThrottled):
		return auditErrThrottled
	case errors.Is(err, ErrNotificationFailed):
		return auditErrNotification
	case errors.Is(err, ErrCredentialUpdateFailed):
		return auditErrCredentialUpdate
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	default:
		return auditErrInternal
	}
}
