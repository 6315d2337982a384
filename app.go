package windstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// App runs a topology as a Kafka consumer group application. The group name
// doubles as the application ID used to derive changelog topic names.
type App struct {
	numRoutines int
	brokers     []string
	groupName   string
	t           *Topology

	routines []*worker

	log logr.Logger
	eg  *errgroup.Group

	commitInterval time.Duration
}

// Option configures an App.
type Option func(*App)

// WithNumRoutines sets the number of worker goroutines, each a separate
// consumer group member.
func WithNumRoutines(n int) Option {
	return func(a *App) {
		a.numRoutines = n
	}
}

func WithBrokers(brokers ...string) Option {
	return func(a *App) {
		a.brokers = brokers
	}
}

func WithCommitInterval(interval time.Duration) Option {
	return func(a *App) {
		a.commitInterval = interval
	}
}

func WithLogr(log logr.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

func New(t *Topology, groupName string, opts ...Option) *App {
	app := &App{
		numRoutines:    1,
		brokers:        []string{"localhost:9092"},
		groupName:      groupName,
		t:              t,
		log:            logr.Discard(),
		commitInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// Run blocks until the app exits, either on error or after Close.
func (a *App) Run() error {
	for i := 0; i < a.numRoutines; i++ {
		routine, err := newWorker(
			a.log,
			fmt.Sprintf("routine-%d", i),
			a.t,
			a.groupName,
			a.brokers,
			a.groupName,
			a.commitInterval,
		)
		if err != nil {
			return err
		}
		a.routines = append(a.routines, routine)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.routines[0].ensureChangelogTopics(ctx, a.groupName); err != nil {
		return err
	}

	grp := errgroup.Group{}
	a.eg = &grp
	for _, routine := range a.routines {
		grp.Go(routine.Run)
	}
	return grp.Wait()
}

// Close shuts the application down gracefully: workers finish their current
// batch, commit, and close their tasks.
func (a *App) Close() error {
	var wg sync.WaitGroup
	for _, routine := range a.routines {
		wg.Add(1)
		go func(routine *worker) {
			defer wg.Done()
			_ = routine.Close()
		}(routine)
	}
	wg.Wait()

	if a.eg != nil {
		return a.eg.Wait()
	}
	return nil
}
