package windstream

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"go.uber.org/multierr"
	"golang.org/x/exp/slices"
)

// taskManager owns the live tasks of one worker: it creates them on
// partition assignment, closes them on revocation, and drives flush and
// offset commit.
type taskManager struct {
	tasks map[int32]*Task

	topology  *Topology
	client    *kgo.Client
	changelog *changelogProducer
	log       logr.Logger
}

// assignedPartitions checks that all source topics were (re)assigned the
// same partitions and returns them. The topology requires co-partitioned
// source topics; a lopsided assignment is a deployment error.
func (tm *taskManager) assignedPartitions(byTopic map[string][]int32) ([]int32, error) {
	var partitions []int32
	for _, topic := range tm.topology.SourceTopics() {
		assigned, ok := byTopic[topic]
		if !ok {
			continue
		}
		slices.Sort(assigned)
		if partitions == nil {
			partitions = assigned
			continue
		}
		if !slices.Equal(partitions, assigned) {
			return nil, fmt.Errorf("partitions not co-assigned: got %v and %v", partitions, assigned)
		}
	}
	return partitions, nil
}

func (tm *taskManager) Assigned(assigned map[string][]int32) error {
	partitions, err := tm.assignedPartitions(assigned)
	if err != nil {
		return err
	}

	topics := tm.topology.SourceTopics()
	for _, partition := range partitions {
		if _, ok := tm.tasks[partition]; ok {
			continue
		}

		var changelog ChangelogWriter
		if tm.changelog != nil {
			changelog = tm.changelog.writerFor(partition)
		}
		task, err := tm.topology.CreateTask(topics, partition, tm.client, changelog)
		if err != nil {
			return fmt.Errorf("create task for partition %d: %w", partition, err)
		}
		if err := task.Init(); err != nil {
			_ = task.Close(context.Background())
			return fmt.Errorf("init task for partition %d: %w", partition, err)
		}
		tm.tasks[partition] = task
		tm.log.Info("task created", "task", task.String())
	}
	return nil
}

func (tm *taskManager) Revoked(revoked map[string][]int32) error {
	partitions, err := tm.assignedPartitions(revoked)
	if err != nil {
		return err
	}

	var closeErr error
	for _, partition := range partitions {
		task, ok := tm.tasks[partition]
		if !ok {
			continue
		}
		closeErr = multierr.Append(closeErr, task.Close(context.Background()))
		delete(tm.tasks, partition)
		tm.log.Info("task closed", "task", task.String())
	}
	return closeErr
}

func (tm *taskManager) TaskFor(topic string, partition int32) (*Task, error) {
	task, ok := tm.tasks[partition]
	if !ok {
		return nil, fmt.Errorf("no task for %s/%d", topic, partition)
	}
	return task, nil
}

// Commit flushes all task state and commits the processed offsets. Stores
// and changelogs are flushed before offsets so a crash between the two
// replays records instead of losing state.
func (tm *taskManager) Commit(ctx context.Context) error {
	offsets := map[string]map[int32]kgo.EpochOffset{}
	for partition, task := range tm.tasks {
		if err := task.Flush(ctx); err != nil {
			return fmt.Errorf("flush %s: %w", task.String(), err)
		}
		for topic, offset := range task.GetOffsetsToCommit() {
			if _, ok := offsets[topic]; !ok {
				offsets[topic] = map[int32]kgo.EpochOffset{}
			}
			offsets[topic][partition] = offset
		}
	}

	if tm.changelog != nil {
		if err := tm.changelog.Flush(ctx); err != nil {
			return fmt.Errorf("flush changelog: %w", err)
		}
	}

	if len(offsets) == 0 {
		return nil
	}

	var commitErr error
	tm.client.CommitOffsetsSync(ctx, offsets, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, _ *kmsg.OffsetCommitResponse, err error) {
		if err != nil {
			commitErr = err
		}
	})
	return commitErr
}

func (tm *taskManager) Close(ctx context.Context) error {
	var err error
	for partition, task := range tm.tasks {
		err = multierr.Append(err, task.Close(ctx))
		delete(tm.tasks, partition)
	}
	return err
}
