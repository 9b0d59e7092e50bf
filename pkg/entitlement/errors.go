package entitlement

import "errors"

var (
	ErrNoCounterRegistered     = errors.New("entitlement: no usage counter registered for resource")
	ErrFailedToCountUsage      = errors.New("entitlement: failed to count resource usage")
	ErrVerificationCheckFailed = errors.New("entitlement: account verification check failed")
)
