// Package operation implements the mechanical operation envelope actors:
// software update, config snapshot/update, log request, restart, and
// firmware each get the same request/response MQTT envelope; none carry
// real business logic, only a stub handler that mechanically acknowledges.
// Real handlers plug in through the Handler type.
package operation

import (
	"context"
	"encoding/json"
	"log/slog"

	"github/bherbruck/edgeagent/internal/actorkit"
	"github/bherbruck/edgeagent/internal/mqttchannel"
)

// Kind names one of the six recognized operation types.
type Kind string

const (
	SoftwareUpdate Kind = "software_update"
	ConfigSnapshot Kind = "config_snapshot"
	ConfigUpdate   Kind = "config_update"
	LogRequest     Kind = "log_request"
	Restart        Kind = "restart"
	Firmware       Kind = "firmware"
)

// Status is the operation's lifecycle stage.
type Status string

const (
	StatusInit       Status = "init"
	StatusExecuting  Status = "executing"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
)

// Envelope is the wire shape carried on both the request and response
// topic for every operation kind. Params is opaque to this package —
// individual operation business logic (out of scope here) would decode it
// against a kind-specific shape.
type Envelope struct {
	ID     string          `json:"id"`
	Kind   Kind            `json:"kind"`
	Status Status          `json:"status"`
	Params json.RawMessage `json:"params,omitempty"`
	Reason string          `json:"reason,omitempty"`
	Token  string          `json:"token,omitempty"`
}

// Handler turns a request Envelope into a response Envelope. An error
// result is reported to the caller as StatusFailed with Reason set to
// err.Error(); Handler itself need not set Status on error.
type Handler func(ctx context.Context, req Envelope) (Envelope, error)

// StubHandler is the default Handler. It has no operation-specific business
// logic and mechanically acknowledges every request as successful,
// carrying the request's ID and Params through unchanged.
func StubHandler(_ context.Context, req Envelope) (Envelope, error) {
	return Envelope{ID: req.ID, Kind: req.Kind, Status: StatusSuccessful, Params: req.Params}, nil
}

// Actor consumes operation request envelopes on one MQTT topic and
// publishes response envelopes to another. It has no protocol loop of its
// own; it rides an already-built mqttchannel.ClientActor's subscription
// and publish ports.
type Actor struct {
	name     string
	kind     Kind
	resTopic string
	handler  Handler
	signer   *Signer

	input  <-chan mqttchannel.Message
	signal <-chan actorkit.RuntimeRequest
	target actorkit.DynSender[mqttchannel.Request]
}

func (a *Actor) Name() string { return a.name }

func (a *Actor) Run(ctx context.Context) error {
	box := actorkit.NewMessageBox(a.input, a.signal)
	for {
		msg, ok := box.Recv(ctx)
		if !ok {
			return nil
		}
		a.handleRequest(ctx, msg)
	}
}

func (a *Actor) handleRequest(ctx context.Context, msg mqttchannel.Message) {
	var req Envelope
	if err := json.Unmarshal(msg.PayloadBytes(), &req); err != nil {
		slog.Warn("operation: malformed request envelope, skipping", "kind", a.kind, "topic", msg.Topic, "error", err)
		return
	}

	resp, err := a.handler(ctx, req)
	if err != nil {
		resp = Envelope{ID: req.ID, Kind: a.kind, Status: StatusFailed, Reason: err.Error()}
	}
	if resp.Kind == "" {
		resp.Kind = a.kind
	}

	if a.signer != nil {
		token, sErr := a.signer.Sign(resp)
		if sErr != nil {
			slog.Warn("operation: signing acknowledgement failed", "kind", a.kind, "error", sErr)
		} else {
			resp.Token = token
		}
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("operation: marshal response envelope failed", "kind", a.kind, "error", err)
		return
	}

	out := mqttchannel.NewMessage(a.resTopic, payload, mqttchannel.AtLeastOnce, false)
	if err := a.target.Send(ctx, mqttchannel.NewPublishRequest(out)); err != nil {
		slog.Warn("operation: publish response failed, target channel closed", "kind", a.kind)
	}
}
