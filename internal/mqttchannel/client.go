package mqttchannel

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github/bherbruck/edgeagent/internal/actorkit"
)

// ClientConfig describes one MQTT broker connection: host, port,
// client_id, clean_session, and the retained health topic the actor
// publishes "up"/"down" on.
type ClientConfig struct {
	Host           string
	Port           int
	ClientID       string
	Username       string
	Password       string
	CleanSession   bool
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	TLS            *tls.Config
	HealthTopic    string
	QueueCapacity  int

	// ManualAcks defers the broker-level acknowledgement of every inbound
	// publish until the receiving peer calls Message.Acknowledge. The
	// Bridge runs both its halves this way so a QoS>=1 message is only
	// acked to the source broker once the opposite side has confirmed the
	// forward; an actor with more than one subscriber should leave this
	// off, since the first peer to acknowledge would ack for all of them.
	ManualAcks bool

	// OnConnectionChange, if set, is called (from the actor's own
	// goroutine, so it must not block) whenever the broker connection
	// transitions up or down. The Bridge uses this to drive its health
	// aggregation and, on reconnect, to kick off replay of any inflight
	// messages still unacked in its persistence store.
	OnConnectionChange func(up bool)
}

func (c ClientConfig) brokerURL() string {
	scheme := "tcp"
	if c.TLS != nil {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

type healthPayload struct {
	Status string `json:"status"`
	PID    int    `json:"pid"`
	Time   string `json:"time"`
}

func healthMessage(status string) []byte {
	b, err := json.Marshal(healthPayload{Status: status, PID: os.Getpid(), Time: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return []byte(`{"status":"` + status + `"}`)
	}
	return b
}

// brokerEvent is one item off the protocol event loop: an incoming publish,
// a completed outbound ack, or a connection-lost notice. The client actor's
// steady-state select treats this stream as concurrent with its own input
// channel.
type brokerEvent struct {
	publish        *Message
	ackErr         error
	ackTopic       string
	connectionLost error
}

// ClientActor is the MQTT Client Actor: one broker connection, translating
// Request values into protocol ops and fanning incoming publishes out to
// its Registry.
type ClientActor struct {
	name      string
	cfg       ClientConfig
	requests  <-chan Request
	signal    <-chan actorkit.RuntimeRequest
	registry  *Registry
	metrics   *Metrics
	reconnect *Reconnector

	events chan brokerEvent
	paho   paho.Client
}

func (a *ClientActor) Name() string { return a.name }

// Run executes the actor lifecycle: init -> connecting -> connected <->
// disconnected (reconnect with backoff) -> terminating -> closed.
func (a *ClientActor) Run(ctx context.Context) error {
	a.events = make(chan brokerEvent, 64)

	if err := a.connectWithBackoff(ctx); err != nil {
		return err
	}
	defer a.disconnect()

	for {
		select {
		case <-ctx.Done():
			a.publishHealthBestEffort("down")
			a.notifyConnectionChange(false)
			return nil

		case <-a.signal:
			a.publishHealthBestEffort("down")
			a.notifyConnectionChange(false)
			return nil

		case r, ok := <-a.requests:
			if !ok {
				a.publishHealthBestEffort("down")
				a.notifyConnectionChange(false)
				return nil
			}
			a.handleRequest(ctx, r)

		case ev := <-a.events:
			a.handleEvent(ctx, ev)
			if ev.connectionLost != nil {
				a.notifyConnectionChange(false)
				if err := a.connectWithBackoff(ctx); err != nil {
					return err
				}
			}
		}
	}
}

func (a *ClientActor) notifyConnectionChange(up bool) {
	if a.cfg.OnConnectionChange != nil {
		a.cfg.OnConnectionChange(up)
	}
}

func (a *ClientActor) handleRequest(ctx context.Context, r Request) {
	switch r.Kind {
	case RequestPublish:
		a.publish(r.Publish, r.Ack)
	case RequestSubscribe:
		a.applySubscribe(r.ClientID, r.Diff)
	}
}

func (a *ClientActor) publish(msg Message, ack chan<- error) {
	if err := ValidateTopic(msg.Topic); err != nil {
		slog.Warn("mqttchannel: dropping publish with malformed topic", "topic", msg.Topic, "error", err)
		if ack != nil {
			ack <- fmt.Errorf("mqttchannel: %w", err)
		}
		return
	}
	if a.metrics != nil {
		a.metrics.PublishAttempted(msg.Topic)
	}
	token := a.paho.Publish(msg.Topic, byte(msg.QoS), msg.Retain, msg.Payload)
	if msg.QoS == AtMostOnce {
		if ack != nil {
			ack <- nil
		}
		return
	}
	go func() {
		token.Wait()
		err := token.Error()
		if err != nil {
			a.events <- brokerEvent{ackErr: err, ackTopic: msg.Topic}
		}
		if ack != nil {
			ack <- err
		}
	}()
}

func (a *ClientActor) applySubscribe(clientID string, diff SubscriptionDiff) {
	delta, err := a.registry.ApplyDiff(clientID, diff)
	if err != nil {
		slog.Warn("mqttchannel: subscribe diff rejected", "client_id", clientID, "error", err)
		return
	}
	a.issueDelta(delta)
}

// issueDelta pushes SUBSCRIBE/UNSUBSCRIBE ops to the broker for patterns the
// registry determined are newly needed or no longer needed by anyone.
func (a *ClientActor) issueDelta(delta Delta) {
	for _, pattern := range delta.Subscribe {
		pattern := pattern
		token := a.paho.Subscribe(pattern, byte(AtLeastOnce), a.onMessage)
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				slog.Error("mqttchannel: SUBSCRIBE failed", "pattern", pattern, "error", err)
			}
		}()
	}
	for _, pattern := range delta.Unsubscribe {
		pattern := pattern
		token := a.paho.Unsubscribe(pattern)
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				slog.Error("mqttchannel: UNSUBSCRIBE failed", "pattern", pattern, "error", err)
			}
		}()
	}
}

// onMessage runs on a paho-managed goroutine; it must not block, so it only
// hands the event to the actor's own loop.
func (a *ClientActor) onMessage(_ paho.Client, m paho.Message) {
	msg := NewMessage(m.Topic(), m.Payload(), QoS(m.Qos()), m.Retained())
	if a.cfg.ManualAcks {
		msg = msg.WithAck(m.Ack)
	}
	select {
	case a.events <- brokerEvent{publish: &msg}:
	default:
		// With manual acks the dropped publish is never acknowledged
		// either, so the broker redelivers a QoS>=1 message later.
		slog.Warn("mqttchannel: event queue full, dropping inbound publish", "topic", msg.Topic)
	}
}

func (a *ClientActor) handleEvent(ctx context.Context, ev brokerEvent) {
	switch {
	case ev.publish != nil:
		if a.metrics != nil {
			a.metrics.MessageRouted(ev.publish.Topic)
		}
		a.registry.Route(ctx, *ev.publish)
	case ev.ackErr != nil:
		slog.Warn("mqttchannel: publish not acknowledged", "topic", ev.ackTopic, "error", ev.ackErr)
	case ev.connectionLost != nil:
		slog.Warn("mqttchannel: connection lost, reconnecting", "client_id", a.cfg.ClientID, "error", ev.connectionLost)
		if a.metrics != nil {
			a.metrics.ReconnectStarted()
		}
	}
}

// connectWithBackoff blocks until connected or ctx is done, retrying
// transient failures with exponential backoff (initial 1s, cap 60s, jitter
// ±20%). Auth/protocol-fatal errors return immediately as a fatal actor
// error.
func (a *ClientActor) connectWithBackoff(ctx context.Context) error {
	a.reconnect.Reset()
	for {
		opts := a.buildClientOptions()
		client := paho.NewClient(opts)
		token := client.Connect()
		if !token.WaitTimeout(a.connectTimeout()) {
			if !a.reconnect.Wait(ctx) {
				return ctx.Err()
			}
			continue
		}
		if err := token.Error(); err != nil {
			if isFatalConnectError(err) {
				return fmt.Errorf("mqttchannel: fatal connect error for %s: %w", a.cfg.ClientID, err)
			}
			if !a.reconnect.Wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		a.paho = client
		a.reconnect.Reset()
		a.resubscribeAll()
		a.publishHealthBestEffort("up")
		a.notifyConnectionChange(true)
		if a.metrics != nil {
			a.metrics.Connected()
		}
		return nil
	}
}

func (a *ClientActor) buildClientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(a.cfg.brokerURL())
	opts.SetClientID(a.cfg.ClientID)
	opts.SetUsername(a.cfg.Username)
	opts.SetPassword(a.cfg.Password)
	opts.SetCleanSession(a.cfg.CleanSession)
	if a.cfg.KeepAlive > 0 {
		opts.SetKeepAlive(a.cfg.KeepAlive)
	}
	if a.cfg.TLS != nil {
		opts.SetTLSConfig(a.cfg.TLS)
	}
	opts.SetAutoReconnect(false) // the actor drives reconnect itself
	if a.cfg.ManualAcks {
		opts.SetAutoAckDisabled(true)
	}
	if a.cfg.HealthTopic != "" {
		opts.SetWill(a.cfg.HealthTopic, string(healthMessage("down")), byte(AtLeastOnce), true)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		select {
		case a.events <- brokerEvent{connectionLost: err}:
		default:
		}
	})
	return opts
}

func (a *ClientActor) connectTimeout() time.Duration {
	if a.cfg.ConnectTimeout > 0 {
		return a.cfg.ConnectTimeout
	}
	return 30 * time.Second
}

func (a *ClientActor) resubscribeAll() {
	for _, pattern := range a.registry.AggregatePatterns() {
		a.paho.Subscribe(pattern, byte(AtLeastOnce), a.onMessage)
	}
}

func (a *ClientActor) publishHealthBestEffort(status string) {
	if a.cfg.HealthTopic == "" || a.paho == nil || !a.paho.IsConnected() {
		return
	}
	a.paho.Publish(a.cfg.HealthTopic, byte(AtLeastOnce), true, healthMessage(status))
}

func (a *ClientActor) disconnect() {
	if a.paho != nil && a.paho.IsConnected() {
		a.paho.Disconnect(250)
	}
}

// isFatalConnectError classifies auth/protocol-fatal connect failures,
// which abort the actor rather than retrying forever. Only enumerated
// identity/credential rejections count; anything unrecognized is treated
// as transient and retried.
func isFatalConnectError(err error) bool {
	switch err {
	case paho.ErrNotConnected:
		return false
	default:
		switch err.Error() {
		case "Not Authorized", "Bad Username or Password", "Connection Refused: Not Authorised",
			"Connection Refused: Bad User Name or Password", "Connection Refused: Identifier Rejected":
			return true
		default:
			return false
		}
	}
}
