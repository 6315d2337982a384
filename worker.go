package windstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/multierr"
)

type workerState string

const (
	stateCreated            workerState = "CREATED"
	statePartitionsAssigned workerState = "PARTITIONS_ASSIGNED"
	stateRunning            workerState = "RUNNING"
	stateCloseRequested     workerState = "CLOSE_REQUESTED"
	stateClosed             workerState = "CLOSED"
)

type assignedOrRevoked struct {
	assigned map[string][]int32
	revoked  map[string][]int32
}

// worker drives one consumer group member: it polls records, routes them to
// per-partition tasks, and commits offsets. It runs a small state machine;
// state transitions happen only from within the loop.
type worker struct {
	name  string
	log   logr.Logger
	group string

	client      *kgo.Client
	adminClient *kadm.Client
	changelog   *changelogProducer

	t     *Topology
	state workerState

	assignedOrRevoked chan assignedOrRevoked
	newlyAssigned     map[string][]int32
	newlyRevoked      map[string][]int32

	closeRequested chan struct{}

	cancelPollMtx sync.Mutex
	cancelPoll    func()

	closed sync.WaitGroup

	maxPollRecords int
	pollTimeout    time.Duration

	taskManager *taskManager

	lastSuccessfulCommit time.Time
	commitInterval       time.Duration

	err error
}

func newWorker(log logr.Logger, name string, t *Topology, group string, brokers []string, appID string, commitInterval time.Duration) (*worker, error) {
	par := make(chan assignedOrRevoked)

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.Balancers(kgo.CooperativeStickyBalancer()),
		kgo.DisableAutoCommit(),
		kgo.ConsumeTopics(t.SourceTopics()...),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, m map[string][]int32) {
			par <- assignedOrRevoked{assigned: m}
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, m map[string][]int32) {
			par <- assignedOrRevoked{revoked: m}
		}),
	)
	if err != nil {
		return nil, err
	}

	var changelog *changelogProducer
	if len(t.ChangelogStores()) > 0 {
		// Changelog records must land on the partition of the task that
		// wrote them, so this producer partitions manually.
		changelogClient, err := kgo.NewClient(
			kgo.SeedBrokers(brokers...),
			kgo.RecordPartitioner(kgo.ManualPartitioner()),
		)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("create changelog producer: %w", err)
		}
		changelog = &changelogProducer{client: changelogClient, appID: appID}
	}

	w := &worker{
		name:              name,
		log:               log.WithName(name),
		group:             group,
		client:            client,
		adminClient:       kadm.NewClient(client),
		changelog:         changelog,
		t:                 t,
		state:             stateCreated,
		assignedOrRevoked: par,
		closeRequested:    make(chan struct{}, 1),
		maxPollRecords:    10000,
		pollTimeout:       10 * time.Second,
		commitInterval:    commitInterval,
		taskManager: &taskManager{
			tasks:     map[int32]*Task{},
			topology:  t,
			client:    client,
			changelog: changelog,
			log:       log.WithName(name),
		},
	}
	w.closed.Add(1)
	return w, nil
}

// ensureChangelogTopics creates the changelog topics of all logged stores.
// Already existing topics are fine.
func (w *worker) ensureChangelogTopics(ctx context.Context, appID string) error {
	stores := w.t.ChangelogStores()
	if len(stores) == 0 {
		return nil
	}

	var topics []string
	configs := map[string]map[string]*string{}
	for _, store := range stores {
		topic := ChangelogTopic(appID, store.Name)
		topics = append(topics, topic)

		cfg := map[string]*string{}
		for k, v := range store.LogConfig {
			v := v
			cfg[k] = &v
		}
		configs[topic] = cfg
	}

	for _, topic := range topics {
		res, err := w.adminClient.CreateTopic(ctx, -1, -1, configs[topic], topic)
		if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create changelog topic %s: %w", topic, err)
		}
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create changelog topic %s: %w", topic, res.Err)
		}
	}
	return nil
}

func (w *worker) changeState(newState workerState) {
	w.log.Info("change state", "from", w.state, "to", newState)
	w.state = newState
}

func (w *worker) Run() error {
	for {
		switch w.state {
		case stateCreated:
			w.handleCreated()
		case statePartitionsAssigned:
			w.handlePartitionsAssigned()
		case stateRunning:
			w.handleRunning()
		case stateCloseRequested:
			w.handleCloseRequested()
		case stateClosed:
			w.closed.Done()
			return w.err
		}
	}
}

func (w *worker) handleCreated() {
	select {
	case ev := <-w.assignedOrRevoked:
		w.newlyAssigned = ev.assigned
		w.newlyRevoked = ev.revoked
		w.changeState(statePartitionsAssigned)
	case <-w.closeRequested:
		w.changeState(stateCloseRequested)
	}
}

func (w *worker) handlePartitionsAssigned() {
	if err := w.taskManager.Revoked(w.newlyRevoked); err != nil {
		w.log.Error(err, "revocation failed")
	}
	if err := w.taskManager.Assigned(w.newlyAssigned); err != nil {
		w.log.Error(err, "assignment failed")
		w.err = err
		w.changeState(stateCloseRequested)
		return
	}

	w.newlyAssigned = nil
	w.newlyRevoked = nil

	if len(w.taskManager.tasks) > 0 {
		w.changeState(stateRunning)
	} else {
		w.changeState(stateCreated)
	}
}

func (w *worker) handleRunning() {
	w.cancelPollMtx.Lock()

	select {
	case ev := <-w.assignedOrRevoked:
		w.newlyAssigned = ev.assigned
		w.newlyRevoked = ev.revoked
		w.changeState(statePartitionsAssigned)
		w.cancelPollMtx.Unlock()
		return
	default:
	}

	select {
	case <-w.closeRequested:
		w.changeState(stateCloseRequested)
		w.cancelPollMtx.Unlock()
		return
	default:
	}

	pollCtx, cancel := context.WithTimeout(context.Background(), w.pollTimeout)
	defer cancel()
	w.cancelPoll = cancel
	w.cancelPollMtx.Unlock()

	fetches := w.client.PollRecords(pollCtx, w.maxPollRecords)
	if fetches.IsClientClosed() {
		w.changeState(stateCloseRequested)
		return
	}
	if errors.Is(fetches.Err(), context.Canceled) {
		return
	}

	if !errors.Is(fetches.Err(), context.DeadlineExceeded) {
		for _, fetchError := range fetches.Errors() {
			if errors.Is(fetchError.Err, context.DeadlineExceeded) {
				continue
			}
			w.err = fmt.Errorf("fetch %s/%d: %w", fetchError.Topic, fetchError.Partition, fetchError.Err)
			w.log.Error(fetchError.Err, "fetch error", "topic", fetchError.Topic, "partition", fetchError.Partition)
			w.changeState(stateCloseRequested)
			return
		}

		var processErr error
		fetches.EachPartition(func(fetch kgo.FetchTopicPartition) {
			if processErr != nil {
				return
			}
			task, err := w.taskManager.TaskFor(fetch.Topic, fetch.Partition)
			if err != nil {
				processErr = err
				return
			}
			if err := task.Process(context.Background(), fetch.Records...); err != nil {
				processErr = err
			}
		})
		if processErr != nil {
			w.err = processErr
			w.log.Error(processErr, "processing failed")
			w.changeState(stateCloseRequested)
			return
		}
	}

	commitCtx, commitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer commitCancel()
	if err := w.maybeCommit(commitCtx); err != nil {
		w.err = err
		w.log.Error(err, "commit failed")
		w.changeState(stateCloseRequested)
	}
}

func (w *worker) maybeCommit(ctx context.Context) error {
	if time.Since(w.lastSuccessfulCommit) < w.commitInterval {
		return nil
	}
	if err := w.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush producer: %w", err)
	}
	if err := w.taskManager.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	w.lastSuccessfulCommit = time.Now()
	return nil
}

func (w *worker) handleCloseRequested() {
	if err := w.client.Flush(context.Background()); err != nil {
		w.log.Error(err, "flush on close failed")
	}
	if err := w.taskManager.Commit(context.Background()); err != nil {
		w.log.Error(err, "commit on close failed")
	}
	if err := w.taskManager.Close(context.Background()); err != nil {
		w.log.Error(err, "task close failed")
	}

	drained := make(chan struct{})
	go func() {
		for range w.assignedOrRevoked {
		}
		close(drained)
	}()

	w.client.Close()
	if w.changelog != nil {
		w.changelog.client.Close()
	}
	// Only safe after the client is closed; the client writes to this
	// channel from its rebalance callbacks.
	close(w.assignedOrRevoked)
	<-drained

	w.changeState(stateClosed)
}

func (w *worker) Close() error {
	w.cancelPollMtx.Lock()
	w.closeRequested <- struct{}{}
	if w.cancelPoll != nil {
		w.cancelPoll()
	}
	w.cancelPollMtx.Unlock()
	w.closed.Wait()
	return nil
}

// changelogProducer appends store changes to changelog topics. Produce
// errors surface on the next Flush, which runs before every offset commit.
type changelogProducer struct {
	client *kgo.Client
	appID  string

	mu   sync.Mutex
	errs []error
}

// writerFor returns a changelog writer pinned to one partition, so a
// store's changelog partition always matches its task's partition.
func (c *changelogProducer) writerFor(partition int32) ChangelogWriter {
	return func(storeName string, key, value []byte) error {
		c.client.Produce(context.Background(), &kgo.Record{
			Topic:     ChangelogTopic(c.appID, storeName),
			Key:       key,
			Value:     value,
			Partition: partition,
		}, func(_ *kgo.Record, err error) {
			if err != nil {
				c.mu.Lock()
				c.errs = append(c.errs, err)
				c.mu.Unlock()
			}
		})
		return nil
	}
}

func (c *changelogProducer) Flush(ctx context.Context) error {
	if err := c.client.Flush(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	err := multierr.Combine(c.errs...)
	c.errs = nil
	return err
}
