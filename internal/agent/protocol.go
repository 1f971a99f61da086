package agent

// Wire protocol: newline-delimited JSON messages over a unix socket.
//
// Daemon -> agent requests carry an id; the agent answers with the same id.
// Agent -> daemon pushes (NAVIGATE_TO) carry no id.
const (
	// Agent -> daemon: user clicked a delivered push, bring this route to
	// the foreground.
	MsgNavigateTo = "NAVIGATE_TO"

	// Daemon -> agent: a replacement agent is staged; finish in-flight work
	// and exit so the unit restart promotes the new build.
	MsgSkipWaiting = "SKIP_WAITING"

	MsgGetSubscription = "GET_SUBSCRIPTION"
	MsgSubscribe       = "SUBSCRIBE"
	MsgUnsubscribe     = "UNSUBSCRIBE"
)

// Subscription is the push endpoint descriptor negotiated by the agent. The
// shape matches what the notification server's subscribe endpoint expects.
type Subscription struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

type SubscriptionKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Message is the single envelope used in both directions.
type Message struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`

	// NAVIGATE_TO
	URL string `json:"url,omitempty"`

	// SUBSCRIBE request
	ApplicationServerKey []byte `json:"application_server_key,omitempty"`

	// GET_SUBSCRIPTION / SUBSCRIBE responses
	Subscription *Subscription `json:"subscription,omitempty"`

	// Non-empty on a failed response.
	Error string `json:"error,omitempty"`
}
