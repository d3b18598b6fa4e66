package domain

import (
	"errors"
)

var ErrNotExist = errors.New("does not exist")

type Kind int

const (
	// KindTransient covers failures that carry no ledger reason, such as
	// network or RPC errors. The next poll retries them.
	KindTransient Kind = iota
	KindCredential
	KindAuthorization
	KindValidation
	KindConflict
	KindDeclined
	KindUnavailable
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindCredential:
		return "credential"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindDeclined:
		return "declined"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a named rejection, either raised by the ledger (the reason string
// of a contract custom error) or detected locally before submission.
type Error struct {
	Reason string
	Kind   Kind
}

func (e *Error) Error() string {
	return e.Reason
}

var reasons = map[string]*Error{}

func newError(reason string, kind Kind) *Error {
	e := &Error{Reason: reason, Kind: kind}
	reasons[reason] = e
	return e
}

var (
	ErrInvalidSignIn = newError("InvalidSignIn", KindCredential)
	ErrSignInExpired = newError("SignInExpired", KindCredential)

	ErrNotGroupMember   = newError("NotGroupMember", KindAuthorization)
	ErrNotPendingMember = newError("NotPendingMember", KindAuthorization)

	ErrEmptyGroupName        = newError("EmptyGroupName", KindValidation)
	ErrGroupDoesNotExist     = newError("GroupDoesNotExist", KindValidation)
	ErrInvalidMemberAddress  = newError("InvalidMemberAddress", KindValidation)
	ErrInvalidRecipient      = newError("InvalidRecipient", KindValidation)
	ErrInvalidRequiredAmount = newError("InvalidRequiredAmount", KindValidation)
	ErrInvalidTokenAddress   = newError("InvalidTokenAddress", KindValidation)
	ErrCannotMessageSelf     = newError("CannotMessageSelf", KindValidation)
	ErrCannotRemoveSelf      = newError("CannotRemoveSelf", KindValidation)
	ErrEmptyMessage          = newError("EmptyMessage", KindValidation)

	ErrAlreadyGroupMember = newError("AlreadyGroupMember", KindConflict)
	ErrAlreadyPending     = newError("AlreadyPending", KindConflict)

	ErrUserRejected       = newError("UserRejected", KindDeclined)
	ErrSigningUnavailable = newError("SigningUnavailable", KindUnavailable)
)

// ReasonError maps a reason string reported by the ledger to its sentinel.
// Unrecognized reasons yield a fresh error of KindUnknown.
func ReasonError(reason string) error {
	if e, ok := reasons[reason]; ok {
		return e
	}
	return &Error{Reason: reason, Kind: KindUnknown}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

func IsCredentialError(err error) bool {
	return err != nil && KindOf(err) == KindCredential
}
