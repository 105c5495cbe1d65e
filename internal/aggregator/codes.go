package aggregator

// OutcomeClass buckets aggregator response codes by what the caller should
// do next.
type OutcomeClass string

const (
	// OutcomePending means the transaction is still in flight; keep polling.
	OutcomePending OutcomeClass = "pending"
	// OutcomeSuccess means funds moved; the payment is complete.
	OutcomeSuccess OutcomeClass = "success"
	// OutcomePermanentFailure means retrying the same request cannot
	// succeed (customer-input or account-level error).
	OutcomePermanentFailure OutcomeClass = "permanent-failure"
	// OutcomeTransientFailure means the failure may clear on retry.
	OutcomeTransientFailure OutcomeClass = "transient-failure"
)

type codeEntry struct {
	Message string
	Class   OutcomeClass
}

// responseCodes maps every documented aggregator response code to a human
// message and an outcome class.
var responseCodes = map[string]codeEntry{
	"1000": {"Transaction initiated, pending subscriber approval", OutcomePending},
	"1100": {"Transaction is still processing", OutcomePending},
	"2001": {"Transaction completed successfully", OutcomeSuccess},
	"1002": {"Mobile number is not registered for mobile money", OutcomePermanentFailure},
	"1005": {"Subscriber has insufficient funds", OutcomePermanentFailure},
	"1008": {"Transaction declined by subscriber", OutcomePermanentFailure},
	"1200": {"Mobile network operator timed out", OutcomeTransientFailure},
	"2100": {"Duplicate transaction id", OutcomePermanentFailure},
	"2500": {"Invalid credentials or signature", OutcomePermanentFailure},
	"3000": {"Unknown error at aggregator", OutcomeTransientFailure},
}

// ClassifyResponseCode returns the human message and outcome class for an
// aggregator response code. Unknown codes classify as transient failures:
// assuming a code we have never seen is permanent would wrongly kill
// payments when the aggregator adds codes.
func ClassifyResponseCode(code string) (string, OutcomeClass) {
	if entry, ok := responseCodes[code]; ok {
		return entry.Message, entry.Class
	}
	return "Unknown aggregator response code " + code, OutcomeTransientFailure
}
