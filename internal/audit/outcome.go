package audit

import "github.com/Cyclone1070/gatekeep/internal/gateerr"

// OutcomeFor classifies err: nil is success, policy and confirmation
// rejections are blocked, everything else is an error.
func OutcomeFor(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	switch gateerr.KindOf(err) {
	case gateerr.KindPathRejected, gateerr.KindCommandBlocked, gateerr.KindConfirmationRequired, gateerr.KindBackpressure:
		return OutcomeBlocked
	}
	return OutcomeError
}

// ErrorText is the caller-safe error string stored on a record.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	return gateerr.Public(err)
}
