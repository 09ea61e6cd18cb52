package chat

import (
	"fmt"

	"github.com/nutrichat/nutrichat-api/internal/geminiservice"
)

// All user-facing chat copy lives here so the session logic stays free of
// string literals and the app presents one consistent voice.
const (
	noticeGreeting = "Hi! What kind of food are you in the mood for today?"

	noticeConsentDisclosure = "Before I can fetch recommendations, a heads up: your food topic and calorie target are sent to Google's Generative Language API to generate suggestions. Nothing else leaves the app. Tap agree to continue."

	noticeLoading = "Looking for recommendations..."

	noticeOffline  = "You appear to be offline. Please check your connection and try again."
	noticeRestored = "You're back online."

	noticeTruncated     = "The answer came back cut off before it was finished. Please try again."
	noticeSafetyBlocked = "The answer was held back by the provider's safety filters. Try rephrasing your request."
	noticeEmpty         = "No recommendations came back this time. Please try again."
	noticeTimeout       = "The request took too long and was abandoned. Please try again."
	noticeNetworkError  = "Something went wrong with the network while fetching recommendations. Please try again."
	noticeDecodeError   = "The recommendation service sent back something unexpected. Please try again."
)

func calorieQuestion(topic string) string {
	return fmt.Sprintf("Sounds good, %s it is! Roughly how many calories per serving are you aiming for?", topic)
}

func blockedNotice(reason string) string {
	return fmt.Sprintf("That request was declined by the provider (%s). Try rephrasing it.", reason)
}

func apiErrorNotice(code int, message string) string {
	return fmt.Sprintf("The recommendation service reported an error (%d): %s", code, message)
}

// noticeForOutcome maps a fetch outcome to the chat entry shown to the user.
// A successful fetch shows the model's text as-is; every failure kind gets
// its own wording.
func noticeForOutcome(out geminiservice.Outcome) string {
	switch out.Kind {
	case geminiservice.KindRecommendation:
		return out.Text
	case geminiservice.KindBlocked:
		return blockedNotice(out.Reason)
	case geminiservice.KindTruncated:
		return noticeTruncated
	case geminiservice.KindSafetyBlocked:
		return noticeSafetyBlocked
	case geminiservice.KindEmpty:
		return noticeEmpty
	case geminiservice.KindTransportError:
		switch out.Transport {
		case geminiservice.TransportOffline:
			return noticeOffline
		case geminiservice.TransportTimeout:
			return noticeTimeout
		default:
			return noticeNetworkError
		}
	case geminiservice.KindAPIError:
		return apiErrorNotice(out.Code, out.Message)
	default:
		return noticeDecodeError
	}
}
