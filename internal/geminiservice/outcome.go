package geminiservice

// Kind classifies the terminal result of a single generateContent call.
// Every call produces exactly one Outcome; there are no retries.
type Kind int

const (
	// KindRecommendation carries model text in Outcome.Text.
	KindRecommendation Kind = iota

	// KindBlocked means the prompt was rejected before generation;
	// Outcome.Reason holds the provider's block reason.
	KindBlocked

	// KindTruncated means generation stopped at the output-token cap.
	KindTruncated

	// KindSafetyBlocked means generation was stopped by the safety filters.
	KindSafetyBlocked

	// KindEmpty means a well-formed response carried no usable text;
	// Outcome.Reason holds the finish reason, possibly empty.
	KindEmpty

	// KindTransportError means the request never produced an HTTP response;
	// Outcome.Transport says whether that looked like offline, timeout or
	// something else.
	KindTransportError

	// KindAPIError is a structured provider error envelope;
	// Outcome.Code and Outcome.Message carry its contents.
	KindAPIError

	// KindDecodeError is a response body this client could not make sense of,
	// in either the success or the error shape.
	KindDecodeError
)

func (k Kind) String() string {
	switch k {
	case KindRecommendation:
		return "recommendation"
	case KindBlocked:
		return "blocked"
	case KindTruncated:
		return "truncated"
	case KindSafetyBlocked:
		return "safety_blocked"
	case KindEmpty:
		return "empty"
	case KindTransportError:
		return "transport_error"
	case KindAPIError:
		return "api_error"
	case KindDecodeError:
		return "decode_error"
	default:
		return "unknown"
	}
}

// TransportKind subdivides KindTransportError.
type TransportKind int

const (
	TransportGeneric TransportKind = iota
	TransportOffline
	TransportTimeout
)

func (t TransportKind) String() string {
	switch t {
	case TransportOffline:
		return "offline"
	case TransportTimeout:
		return "timeout"
	default:
		return "generic"
	}
}

// Outcome is the single terminal result of a Fetch call. Which fields are
// meaningful depends on Kind; see the Kind constants.
type Outcome struct {
	Kind      Kind
	Text      string
	Reason    string
	Transport TransportKind
	Code      int
	Message   string

	// Err keeps the underlying error for logs; it is never shown to users.
	Err error
}
