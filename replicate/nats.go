package replicate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/types"
)

// NATSLogConfig configures the NATS JetStream commit log.
type NATSLogConfig struct {
	// StreamName is the JetStream stream name for storing commits.
	// Default: "causeway-commits"
	StreamName string

	// Subject is the subject commits are published to.
	// Default: "causeway.commits"
	Subject string

	// ConsumerPrefix prefixes the durable consumer name of each replica.
	// Default: "causeway-replica"
	ConsumerPrefix string

	// MaxAge is the maximum age of commits in the stream.
	// Default: 24 hours
	MaxAge time.Duration

	// MaxMsgs is the maximum number of commits in the stream.
	// Default: 1,000,000
	MaxMsgs int64

	// MaxBytes is the maximum total size of the stream in bytes.
	// Default: 1GB
	MaxBytes int64

	// Replicas is the number of stream replicas (for fault tolerance).
	// Default: 1 (use 3 for production clusters)
	Replicas int

	// PublishTimeout is the timeout for publishing commits.
	// Default: 5 seconds
	PublishTimeout time.Duration
}

// DefaultNATSLogConfig returns the default configuration.
//
// Returns:
//   - NATSLogConfig: Default configuration with reasonable defaults
func DefaultNATSLogConfig() NATSLogConfig {
	return NATSLogConfig{
		StreamName:     "causeway-commits",
		Subject:        "causeway.commits",
		ConsumerPrefix: "causeway-replica",
		MaxAge:         24 * time.Hour,
		MaxMsgs:        1_000_000,
		MaxBytes:       1 << 30, // 1GB
		Replicas:       1,
		PublishTimeout: 5 * time.Second,
	}
}

// NATSLog implements a durable commit log using NATS JetStream.
//
// Every replica reads the full stream through its own durable consumer with
// at most one unacknowledged commit, so commits reach each replica in
// sequence order and survive process crashes. Publishes carry the commit
// sequence as the message id, which lets JetStream drop duplicates.
type NATSLog struct {
	js     jetstream.JetStream
	stream jetstream.Stream
	config NATSLogConfig
	closed bool
	mu     sync.RWMutex
}

// Compile-time assertion that NATSLog implements causeway.CommitLog.
var _ causeway.CommitLog = (*NATSLog)(nil)

// NATSLogOption configures a NATSLog.
type NATSLogOption func(*NATSLogConfig)

// WithStreamName sets the JetStream stream name.
//
// Parameters:
//   - name: Stream name
//
// Returns:
//   - NATSLogOption: Configuration option
func WithStreamName(name string) NATSLogOption {
	return func(c *NATSLogConfig) {
		c.StreamName = name
	}
}

// WithSubject sets the subject commits are published to.
//
// Parameters:
//   - subject: Subject name
//
// Returns:
//   - NATSLogOption: Configuration option
func WithSubject(subject string) NATSLogOption {
	return func(c *NATSLogConfig) {
		c.Subject = subject
	}
}

// WithConsumerPrefix sets the durable consumer name prefix.
//
// Parameters:
//   - prefix: Consumer name prefix
//
// Returns:
//   - NATSLogOption: Configuration option
func WithConsumerPrefix(prefix string) NATSLogOption {
	return func(c *NATSLogConfig) {
		c.ConsumerPrefix = prefix
	}
}

// WithMaxAge sets the maximum age of commits in the stream.
//
// Parameters:
//   - d: Maximum age duration
//
// Returns:
//   - NATSLogOption: Configuration option
func WithMaxAge(d time.Duration) NATSLogOption {
	return func(c *NATSLogConfig) {
		c.MaxAge = d
	}
}

// WithMaxMsgs sets the maximum number of commits in the stream.
//
// Parameters:
//   - n: Maximum number of messages
//
// Returns:
//   - NATSLogOption: Configuration option
func WithMaxMsgs(n int64) NATSLogOption {
	return func(c *NATSLogConfig) {
		c.MaxMsgs = n
	}
}

// WithMaxBytes sets the maximum total size of the stream.
//
// Parameters:
//   - n: Maximum bytes
//
// Returns:
//   - NATSLogOption: Configuration option
func WithMaxBytes(n int64) NATSLogOption {
	return func(c *NATSLogConfig) {
		c.MaxBytes = n
	}
}

// WithReplicas sets the number of stream replicas.
//
// Parameters:
//   - n: Number of replicas (1 for dev, 3 for production)
//
// Returns:
//   - NATSLogOption: Configuration option
func WithReplicas(n int) NATSLogOption {
	return func(c *NATSLogConfig) {
		c.Replicas = n
	}
}

// WithPublishTimeout sets the timeout for publishing commits.
//
// Parameters:
//   - d: Publish timeout duration
//
// Returns:
//   - NATSLogOption: Configuration option
func WithPublishTimeout(d time.Duration) NATSLogOption {
	return func(c *NATSLogConfig) {
		c.PublishTimeout = d
	}
}

// NewNATSLog creates a new NATS JetStream commit log.
//
// This function creates or updates a JetStream stream for storing commits.
// The caller is responsible for creating the JetStream context from their NATS connection.
//
// Parameters:
//   - js: A JetStream context (created via jetstream.New(conn))
//   - opts: Optional configuration options
//
// Returns:
//   - *NATSLog: A new NATS commit log
//   - error: Error if stream creation fails
//
// Example:
//
//	nc, _ := nats.Connect("nats://localhost:4222")
//	js, _ := jetstream.New(nc)
//	log, _ := replicate.NewNATSLog(js)
func NewNATSLog(js jetstream.JetStream, opts ...NATSLogOption) (*NATSLog, error) {
	if js == nil {
		return nil, errors.New("causeway: JetStream context is nil")
	}

	config := DefaultNATSLogConfig()
	for _, opt := range opts {
		opt(&config)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	streamConfig := jetstream.StreamConfig{
		Name:        config.StreamName,
		Description: "causeway commit log",
		Subjects:    []string{config.Subject},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      config.MaxAge,
		MaxMsgs:     config.MaxMsgs,
		MaxBytes:    config.MaxBytes,
		Replicas:    config.Replicas,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		Duplicates:  2 * time.Minute,
	}

	stream, err := js.CreateOrUpdateStream(ctx, streamConfig)
	if err != nil {
		return nil, fmt.Errorf("causeway: failed to create/update stream: %w", err)
	}

	return &NATSLog{
		js:     js,
		stream: stream,
		config: config,
	}, nil
}

// Append publishes a committed write to the stream.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - entry: The committed write
//
// Returns:
//   - error: nil on success, error on publish failure
func (n *NATSLog) Append(ctx context.Context, entry types.CommitEntry) error {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()

		return types.ErrLogClosed
	}
	n.mu.RUnlock()

	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, n.config.PublishTimeout)
	defer cancel()

	_, err = n.js.Publish(pubCtx, n.config.Subject, data,
		jetstream.WithMsgID(strconv.FormatUint(entry.Seq, 10)),
	)
	if err != nil {
		return fmt.Errorf("causeway: failed to publish commit: %w", err)
	}

	return nil
}

// Fetch retrieves the next commits for a replica.
//
// This creates the replica's durable pull consumer if it doesn't exist.
// The returned messages must be acknowledged after they are applied, or
// negatively acknowledged for redelivery. With at most one commit pending
// per replica, batchSize larger than one only helps after an ack.
//
// Parameters:
//   - ctx: Context for cancellation
//   - replica: The replica to fetch for
//   - batchSize: Maximum number of messages to fetch
//
// Returns:
//   - []CommitMessage: Commits in sequence order
//   - error: Error if fetch fails
func (n *NATSLog) Fetch(ctx context.Context, replica types.ReplicaID, batchSize int) ([]CommitMessage, error) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()

		return nil, types.ErrLogClosed
	}
	n.mu.RUnlock()

	consumer, err := n.consumer(ctx, replica)
	if err != nil {
		return nil, err
	}

	msgs, err := consumer.Fetch(batchSize, jetstream.FetchMaxWait(time.Second))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, jetstream.ErrNoMessages) {
			return nil, nil // No messages available
		}

		return nil, fmt.Errorf("causeway: failed to fetch commits: %w", err)
	}

	result := make([]CommitMessage, 0, batchSize)
	for msg := range msgs.Messages() {
		entry, err := decodeEntry(msg.Data())
		if err != nil {
			// A commit that cannot be decoded will never apply; stop here
			// and let it be redelivered rather than skip past it.
			_ = msg.Nak()

			break
		}

		var delivered uint64
		if meta, err := msg.Metadata(); err == nil {
			delivered = meta.NumDelivered
		}

		result = append(result, CommitMessage{
			Entry:         entry,
			DeliveryCount: delivered,
			ackFunc:       msg.Ack,
			nakFunc:       msg.NakWithDelay,
		})
	}

	if err := msgs.Error(); err != nil {
		if !errors.Is(err, jetstream.ErrNoMessages) && !errors.Is(err, context.DeadlineExceeded) {
			return result, fmt.Errorf("causeway: error during commit fetch: %w", err)
		}
	}

	return result, nil
}

// consumer returns the durable consumer of a replica.
func (n *NATSLog) consumer(ctx context.Context, replica types.ReplicaID) (jetstream.Consumer, error) {
	name := n.ConsumerName(replica)

	consumer, err := n.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          name,
		Durable:       name,
		FilterSubject: n.config.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxAckPending: 1,
		MaxDeliver:    -1,
	})
	if err != nil {
		return nil, fmt.Errorf("causeway: failed to create consumer: %w", err)
	}

	return consumer, nil
}

// ConsumerName returns the durable consumer name of a replica.
//
// Characters not allowed in consumer names are replaced with '_'.
func (n *NATSLog) ConsumerName(replica types.ReplicaID) string {
	var b strings.Builder
	b.WriteString(n.config.ConsumerPrefix)
	b.WriteByte('-')
	for _, r := range string(replica) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}

// Pending returns the number of commits a replica has not acknowledged.
//
// Parameters:
//   - ctx: Context for cancellation
//   - replica: The replica to check
//
// Returns:
//   - int: Number of pending commits
//   - error: Error if unable to get consumer info
func (n *NATSLog) Pending(ctx context.Context, replica types.ReplicaID) (int, error) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()

		return 0, types.ErrLogClosed
	}
	n.mu.RUnlock()

	consumer, err := n.consumer(ctx, replica)
	if err != nil {
		return 0, err
	}

	info, err := consumer.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("causeway: failed to get consumer info: %w", err)
	}

	pending := info.NumPending + uint64(info.NumAckPending) //nolint:gosec // NumAckPending is non-negative
	if pending > uint64(^uint(0)>>1) {
		pending = uint64(^uint(0) >> 1)
	}

	//nolint:gosec // overflow is handled by the cap above
	return int(pending), nil
}

// Len returns the number of commits retained in the stream.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - int: Number of retained commits
//   - error: Error if unable to get stream info
func (n *NATSLog) Len(ctx context.Context) (int, error) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()

		return 0, types.ErrLogClosed
	}
	n.mu.RUnlock()

	info, err := n.stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("causeway: failed to get stream info: %w", err)
	}

	msgs := info.State.Msgs
	if msgs > uint64(^uint(0)>>1) {
		msgs = uint64(^uint(0) >> 1)
	}

	//nolint:gosec // overflow is handled by the cap above
	return int(msgs), nil
}

// Close closes the log.
//
// Note: This does NOT close the NATS connection - that is the caller's responsibility.
func (n *NATSLog) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true

	return nil
}

// StreamName returns the JetStream stream name.
func (n *NATSLog) StreamName() string {
	return n.config.StreamName
}

// CommitMessage wraps a commit entry with acknowledgment functions.
type CommitMessage struct {
	Entry types.CommitEntry

	// DeliveryCount is how many times JetStream has delivered this commit.
	DeliveryCount uint64

	ackFunc func() error
	nakFunc func(delay time.Duration) error
}

// Ack acknowledges that the commit was applied.
//
// Returns:
//   - error: Error if acknowledgment fails
func (m *CommitMessage) Ack() error {
	if m.ackFunc != nil {
		return m.ackFunc()
	}

	return nil
}

// Nak requests redelivery of the commit after delay.
//
// Parameters:
//   - delay: Redelivery delay; zero redelivers immediately
//
// Returns:
//   - error: Error if negative acknowledgment fails
func (m *CommitMessage) Nak(delay time.Duration) error {
	if m.nakFunc != nil {
		return m.nakFunc(delay)
	}

	return nil
}
