package kafka

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/digitalis-io/kafcat/pkg/logger"
)

// DefaultIdleTimeout is how long a one-shot run waits for another message
// before deciding the backlog is drained. An approximation of "everything
// currently available", not a broker-side guarantee.
const DefaultIdleTimeout = 500 * time.Millisecond

// Options is the immutable per-run configuration handed to the tailer.
type Options struct {
	Topic         string
	FromBeginning bool          // rewind to the earliest offset before consuming
	Follow        bool          // keep waiting for new messages instead of draining and stopping
	IdleTimeout   time.Duration // one-shot drain window; zero means DefaultIdleTimeout
}

// ConsumerClient is the slice of Client the tailer needs.
type ConsumerClient interface {
	HasTopic(name string) (bool, error)
	OldestOffset(topic string, partition int32) (int64, error)
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
}

// Tailer consumes a single topic and writes each payload, newline-terminated,
// to out. It is the sarama.ConsumerGroupHandler for its own sessions.
type Tailer struct {
	client ConsumerClient
	opts   Options
	out    io.Writer

	rewound atomic.Bool // FromBeginning applied once, survives rebalances

	// One-shot drain bookkeeping. Sarama ends the whole session as soon as
	// any ConsumeClaim returns, so an idle claim must not return while
	// siblings still have backlog: it flags itself idle and the last claim
	// to go idle cancels the session for everyone.
	expectedClaims atomic.Int64
	idleClaims     atomic.Int64
	drained        atomic.Bool
	cancelSession  context.CancelFunc
}

func NewTailer(client ConsumerClient, opts Options, out io.Writer) *Tailer {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &Tailer{
		client:        client,
		opts:          opts,
		out:           out,
		cancelSession: func() {},
	}
}

// Run consumes until the backlog is drained (one-shot), or until ctx is
// cancelled (follow mode, or an interrupt at any point). The committed cursor
// is flushed in Cleanup on every exit path, so it never runs ahead of out.
func (t *Tailer) Run(ctx context.Context) error {
	exists, err := t.client.HasTopic(t.opts.Topic)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("topic %s not found", t.opts.Topic)
	}

	for {
		sessCtx, cancel := context.WithCancel(ctx)
		t.cancelSession = cancel
		err := t.client.Consume(sessCtx, []string{t.opts.Topic}, t)
		cancel()
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if !t.opts.Follow && t.drained.Load() {
			return nil
		}
		if err != nil {
			return err
		}
		// Session ended on a rebalance; rejoin and continue.
	}
}

// Setup rewinds every claimed partition to its earliest offset when
// FromBeginning is set, and commits that position before any message flows.
func (t *Tailer) Setup(session sarama.ConsumerGroupSession) error {
	log := logger.Get()
	log.WithField("claims", session.Claims()).Debug("Consumer group session started")

	total := 0
	for _, partitions := range session.Claims() {
		total += len(partitions)
	}
	t.expectedClaims.Store(int64(total))
	t.idleClaims.Store(0)

	if !t.opts.FromBeginning || !t.rewound.CompareAndSwap(false, true) {
		return nil
	}

	for topic, partitions := range session.Claims() {
		for _, partition := range partitions {
			oldest, err := t.client.OldestOffset(topic, partition)
			if err != nil {
				return err
			}
			session.ResetOffset(topic, partition, oldest, "")
			log.WithFields(map[string]interface{}{
				"topic":     topic,
				"partition": partition,
				"offset":    oldest,
			}).Debug("Rewound partition to earliest offset")
		}
	}
	session.Commit()

	return nil
}

// Cleanup persists the cursor. Runs when the claims return (drain), on a
// rebalance, and when the session context is cancelled by an interrupt.
func (t *Tailer) Cleanup(session sarama.ConsumerGroupSession) error {
	session.Commit()
	logger.Get().Debug("Consumer group session ended, offsets committed")
	return nil
}

func (t *Tailer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	if t.opts.Follow {
		return t.follow(session, claim)
	}
	return t.drain(session, claim)
}

// follow tails the claim until the session ends. The wait is unbounded.
func (t *Tailer) follow(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := t.write(session, msg); err != nil {
				return err
			}
		}
	}
}

// drain tails the claim, flagging it idle when no message arrives within the
// idle window. The claim does not return on its own then: the session ends
// only once every claimed partition is idle at the same time, so one empty
// partition cannot cut short a sibling still working through its backlog.
func (t *Tailer) drain(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	idle := time.NewTimer(t.opts.IdleTimeout)
	defer idle.Stop()
	idled := false

	for {
		select {
		case <-session.Context().Done():
			return nil
		case <-idle.C:
			idled = true
			if t.idleClaims.Add(1) == t.expectedClaims.Load() {
				t.drained.Store(true)
				t.cancelSession()
			}
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if idled {
				idled = false
				t.idleClaims.Add(-1)
			}
			if err := t.write(session, msg); err != nil {
				return err
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(t.opts.IdleTimeout)
		}
	}
}

// write emits the payload verbatim plus a trailing newline, then marks the
// message. Marking strictly after the write keeps the committed cursor at or
// behind the output.
func (t *Tailer) write(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	if _, err := t.out.Write(msg.Value); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if _, err := t.out.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	session.MarkMessage(msg, "")
	return nil
}
