package dispatch

import (
	"errors"

	"github.com/KadevalArpit/prelax-email-api/pkg/mail"
)

// Classification describes how a failed delivery attempt should be handled.
type Classification struct {
	// Throttled marks the failure as a provider throttle/rejection signal;
	// the responsible account is rate limited until the next rollover.
	Throttled bool
	// Retriable allows another attempt within the same dispatch call.
	Retriable bool
}

// Classifier maps a raw provider error to a classification. It is injectable
// so new providers can be supported without touching the engine control flow.
type Classifier func(error) Classification

// throttleCodes is the set of provider response codes treated as
// throttle/rejection signals.
var throttleCodes = map[int]bool{
	421: true,
	450: true,
	550: true,
	552: true,
	554: true,
}

// DefaultClassifier flags the fixed provider code set as throttling and
// everything else as transient. Throttled failures stay retriable because
// the retry re-resolves the account, naturally skipping the throttled one
// on the rotation path.
func DefaultClassifier(err error) Classification {
	var se *mail.SendError
	if errors.As(err, &se) && throttleCodes[se.Code] {
		return Classification{Throttled: true, Retriable: true}
	}
	return Classification{Retriable: true}
}
