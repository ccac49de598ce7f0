package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"journal/internal/domain"
	"journal/internal/monitoring"

	"k8s.io/klog/v2"
)

// ErrThrottled indicates that the caller exhausted the quota for an operation.
var ErrThrottled = errors.New("too many requests")

// Operation tags used in throttle keys.
const (
	OpLogin  = "login"
	OpUpload = "upload"
)

// Operation is a quota-gated action class.
type Operation struct {
	Tag  string
	Rule domain.QuotaRule
}

// GuardConfig holds the quota rules per operation class.
type GuardConfig struct {
	Login  domain.QuotaRule
	Upload domain.QuotaRule
}

// DefaultGuardConfig returns 5 logins per 15 minutes and 20 uploads per 10
// minutes.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Login:  domain.QuotaRule{Requests: 5, Window: 15 * time.Minute},
		Upload: domain.QuotaRule{Requests: 20, Window: 10 * time.Minute},
	}
}

// LoginOutcome is the result of a guarded login. Quota is always populated.
type LoginOutcome struct {
	Session *domain.Session
	Quota   domain.QuotaDecision
}

// Admission is the result of admitting an authenticated, quota-gated action.
// Quota is zero when the caller was rejected before the ledger was consulted.
type Admission struct {
	User  *domain.User
	Quota domain.QuotaDecision
}

// AccessGuard wraps sensitive operations with a quota check keyed by caller.
type AccessGuard struct {
	ledger  *QuotaLedger
	auth    *AuthService
	login   Operation
	upload  Operation
	metrics *monitoring.Metrics
}

// NewAccessGuard composes ledger and auth. Invalid rules fall back to the
// defaults.
func NewAccessGuard(ledger *QuotaLedger, auth *AuthService, cfg GuardConfig, m *monitoring.Metrics) *AccessGuard {
	def := DefaultGuardConfig()
	if !cfg.Login.Valid() {
		cfg.Login = def.Login
	}
	if !cfg.Upload.Valid() {
		cfg.Upload = def.Upload
	}
	return &AccessGuard{
		ledger:  ledger,
		auth:    auth,
		login:   Operation{Tag: OpLogin, Rule: cfg.Login},
		upload:  Operation{Tag: OpUpload, Rule: cfg.Upload},
		metrics: m,
	}
}

// LoginOperation returns the login quota class.
func (g *AccessGuard) LoginOperation() Operation { return g.login }

// UploadOperation returns the upload quota class.
func (g *AccessGuard) UploadOperation() Operation { return g.upload }

// ThrottleKey builds the ledger identifier for a caller and operation tag.
func ThrottleKey(tag, caller string) string {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		caller = "unknown"
	}
	return tag + ":" + caller
}

// Throttle consumes one unit of op's quota for caller.
func (g *AccessGuard) Throttle(op Operation, caller string) domain.QuotaDecision {
	d := g.ledger.Check(ThrottleKey(op.Tag, caller), op.Rule.Requests, op.Rule.Window)
	g.metrics.ObserveQuota(op.Tag, d.Admitted)
	return d
}

// Login throttles by caller and, when admitted, verifies the credentials and
// issues a session. Throttled attempts never reach the credential store.
func (g *AccessGuard) Login(ctx context.Context, caller, email, password string) (LoginOutcome, error) {
	out := LoginOutcome{Quota: g.Throttle(g.login, caller)}
	if !out.Quota.Admitted {
		g.metrics.ObserveLogin("throttled")
		klog.V(1).InfoS("login throttled", "caller", caller, "reset", out.Quota.WindowEnd)
		return out, ErrThrottled
	}

	if strings.TrimSpace(email) == "" || password == "" {
		g.metrics.ObserveLogin("bad_request")
		return out, ErrCredentialsRequired
	}

	sess, err := g.auth.Login(ctx, email, password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		g.metrics.ObserveLogin("invalid")
		klog.V(1).InfoS("login rejected", "caller", caller, "remaining", out.Quota.Remaining)
		return out, err
	case err != nil:
		g.metrics.ObserveLogin("error")
		return out, err
	}

	g.metrics.ObserveLogin("success")
	klog.InfoS("login succeeded", "caller", caller, "userID", sess.UserID)
	out.Session = sess
	return out, nil
}

// Admit validates the session behind token and then consumes one unit of
// op's quota. Unauthenticated callers are rejected before the ledger is
// consulted.
func (g *AccessGuard) Admit(ctx context.Context, op Operation, caller, token string) (Admission, error) {
	user, err := g.auth.ValidateSession(ctx, token)
	if err != nil {
		return Admission{}, err
	}

	a := Admission{User: user, Quota: g.Throttle(op, caller)}
	if !a.Quota.Admitted {
		klog.V(1).InfoS("operation throttled", "operation", op.Tag, "caller", caller, "reset", a.Quota.WindowEnd)
		return a, ErrThrottled
	}
	return a, nil
}
