package mqttchannel

// SubscriptionDiff is the set of pattern additions/removals a peer wants
// applied to its own subscription set.
type SubscriptionDiff struct {
	Subscribe   []string
	Unsubscribe []string
}

// RequestKind tags the variant carried by a Request.
type RequestKind int

const (
	RequestPublish RequestKind = iota
	RequestSubscribe
)

// Request is the outbound op the MQTT Client Actor consumes from its
// input: either a Publish or a Subscribe (diff) for a given client.
type Request struct {
	Kind     RequestKind
	Publish  Message
	ClientID string
	Diff     SubscriptionDiff

	// Ack, if non-nil, receives the publish outcome once the broker has
	// acknowledged it (nil for QoS 0, which has no broker ack). Exactly
	// one value is sent, then the channel is never used again. Callers
	// that don't need completion notification (most publishers) leave
	// this nil.
	Ack chan<- error
}

// NewPublishRequest builds a Publish request with no ack notification.
func NewPublishRequest(msg Message) Request {
	return Request{Kind: RequestPublish, Publish: msg}
}

// NewAckedPublishRequest builds a Publish request whose broker
// acknowledgement (for QoS >= 1) is reported on ack. The Bridge uses this
// to hold back the inbound ack until the outbound hop has completed,
// keeping delivery at-least-once end to end.
func NewAckedPublishRequest(msg Message, ack chan<- error) Request {
	return Request{Kind: RequestPublish, Publish: msg, Ack: ack}
}

// NewSubscribeRequest builds a Subscribe request for clientID.
func NewSubscribeRequest(clientID string, diff SubscriptionDiff) Request {
	return Request{Kind: RequestSubscribe, ClientID: clientID, Diff: diff}
}
