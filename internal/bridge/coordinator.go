package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github/bherbruck/edgeagent/internal/actorkit"
	"github/bherbruck/edgeagent/internal/mqttchannel"
)

// forwardJob pairs a received message with the rule that matched it, so
// the topic rewrite doesn't need a second lookup inside the worker. A job
// replayed from the persistence store carries its already-rewritten
// message and the store row it came from instead of a rule.
type forwardJob struct {
	msg         mqttchannel.Message
	rule        Rule
	isReplay    bool
	replayID    uint
	sourceTopic string
}

// Coordinator is the per-direction forwarder: it subscribes to one side's
// registry output, transforms each message per the matching rule, and
// publishes to the other side. Forwarding is
// serialized per source topic (one worker goroutine each) so that
// per-client, per-topic order is preserved; distinct topics forward
// concurrently.
type Coordinator struct {
	name      string
	direction Direction
	rules     *RuleSet
	input     <-chan mqttchannel.Message
	target    actorkit.DynSender[mqttchannel.Request]
	store     *Store
	metrics   *Metrics

	mu      sync.Mutex
	workers map[string]chan forwardJob
	wg      sync.WaitGroup

	replaying atomic.Bool
}

// NewCoordinator builds a forwarder for one direction. store may be nil,
// in which case QoS>=1 forwards are still ack-awaited but not durably
// recorded.
func NewCoordinator(name string, direction Direction, rules *RuleSet, input <-chan mqttchannel.Message, target actorkit.DynSender[mqttchannel.Request], store *Store, metrics *Metrics) *Coordinator {
	return &Coordinator{
		name:      name,
		direction: direction,
		rules:     rules,
		input:     input,
		target:    target,
		store:     store,
		metrics:   metrics,
		workers:   make(map[string]chan forwardJob),
	}
}

func (c *Coordinator) Name() string { return c.name }

func (c *Coordinator) Run(ctx context.Context) error {
	defer c.drainWorkers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-c.input:
			if !ok {
				return nil
			}
			rule, matched := c.rules.Match(c.direction, msg.Topic)
			if !matched {
				slog.Warn("bridge: no rule matches topic, dropping", "direction", c.direction.String(), "topic", msg.Topic)
				if c.metrics != nil {
					c.metrics.DroppedNoRule(c.direction.String())
				}
				// Deliberately dropped, so ack it; leaving it unacked
				// would only make the broker redeliver it for nothing.
				msg.Acknowledge()
				continue
			}
			c.dispatch(ctx, forwardJob{msg: msg, rule: rule})
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context, job forwardJob) {
	key := job.msg.Topic
	if job.isReplay {
		key = job.sourceTopic
	}
	ch := c.workerFor(ctx, key)
	select {
	case ch <- job:
	case <-ctx.Done():
	}
}

// ReplayPending reloads inflight rows the store still has marked unacked
// for this coordinator's bridge/direction and re-dispatches each through
// the same per-source-topic worker queues live forwards use, so a message
// left over from before a reconnect is re-sent ahead of (and ordered with)
// whatever the registry delivers afterward. Safe to call from an MQTT
// Client Actor's OnConnectionChange callback: it only enqueues work and
// returns, save for the store read itself, and does not wait for acks. A
// second call while one is already running is a no-op; the next reconnect
// will pick up anything still unacked.
func (c *Coordinator) ReplayPending(ctx context.Context) {
	if c.store == nil {
		return
	}
	if !c.replaying.CompareAndSwap(false, true) {
		return
	}
	defer c.replaying.Store(false)

	rows, err := c.store.Pending(c.name, c.direction)
	if err != nil {
		slog.Error("bridge: loading pending inflight messages failed", "direction", c.direction.String(), "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	slog.Info("bridge: replaying pending inflight messages", "direction", c.direction.String(), "count", len(rows))
	for _, row := range rows {
		msg := mqttchannel.NewMessage(row.TargetTopic, row.Payload, mqttchannel.QoS(row.QoS), row.Retain)
		c.dispatch(ctx, forwardJob{msg: msg, isReplay: true, replayID: row.ID, sourceTopic: row.SourceTopic})
	}
}

func (c *Coordinator) workerFor(ctx context.Context, topic string) chan forwardJob {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.workers[topic]; ok {
		return ch
	}
	ch := make(chan forwardJob, 32)
	c.workers[topic] = ch
	c.wg.Add(1)
	go c.runWorker(ctx, ch)
	return ch
}

func (c *Coordinator) runWorker(ctx context.Context, jobs chan forwardJob) {
	defer c.wg.Done()
	for job := range jobs {
		c.forward(ctx, job)
	}
}

// forward transforms and publishes one message, blocking its own topic's
// worker (not the coordinator, nor other topics' workers) until the target
// broker has acknowledged a QoS>=1 publish. The inbound publish is only
// acknowledged back to the source broker once that outbound ack has
// arrived, so a crash mid-hop leaves the message unacked on the source
// side and it is redelivered.
func (c *Coordinator) forward(ctx context.Context, job forwardJob) {
	var out mqttchannel.Message
	if job.isReplay {
		out = job.msg
	} else {
		rewritten := job.rule.Rewrite(job.msg.Topic)
		out = mqttchannel.NewMessage(rewritten, job.msg.Payload, job.rule.QoS, job.rule.ApplyRetain(job.msg.Retain))
	}

	if out.QoS == mqttchannel.AtMostOnce {
		if err := c.target.Send(ctx, mqttchannel.NewPublishRequest(out)); err != nil {
			slog.Warn("bridge: forward dropped, target channel closed", "direction", c.direction.String(), "topic", out.Topic)
		}
		// At-most-once has no outbound ack to wait for: ack the inbound
		// side now, dropping on failure.
		job.msg.Acknowledge()
		return
	}

	inflightID := job.replayID
	if !job.isReplay && c.store != nil {
		id, err := c.store.Record(c.name, c.direction, InflightMessage{
			SourceTopic: job.msg.Topic,
			TargetTopic: out.Topic,
			Payload:     out.Payload,
			QoS:         byte(out.QoS),
			Retain:      out.Retain,
		})
		if err != nil {
			slog.Error("bridge: recording inflight message failed", "error", err)
		} else {
			inflightID = id
		}
	}

	ack := make(chan error, 1)
	if err := c.target.Send(ctx, mqttchannel.NewAckedPublishRequest(out, ack)); err != nil {
		slog.Warn("bridge: forward dropped, target channel closed", "direction", c.direction.String(), "topic", out.Topic)
		return
	}

	select {
	case err := <-ack:
		if err != nil {
			slog.Warn("bridge: forward not acknowledged", "direction", c.direction.String(), "topic", out.Topic, "error", err)
			if c.metrics != nil {
				c.metrics.ForwardFailed(c.direction.String())
			}
			return
		}
		if c.store != nil && inflightID != 0 {
			if err := c.store.Ack(inflightID); err != nil {
				slog.Error("bridge: marking inflight message acked failed", "error", err)
			}
		}
		job.msg.Acknowledge()
		if c.metrics != nil {
			c.metrics.ForwardAcked(c.direction.String())
			if job.isReplay {
				c.metrics.Replayed(c.direction.String())
			}
		}
	case <-ctx.Done():
	}
}

func (c *Coordinator) drainWorkers() {
	c.mu.Lock()
	for _, ch := range c.workers {
		close(ch)
	}
	c.mu.Unlock()
	c.wg.Wait()
}
