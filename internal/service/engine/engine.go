// Package engine is the entry point of the ranking engine. It serializes
// level mutations per list, runs each mutation in one transaction, keeps user
// totals in step with list changes and emits notifications after commit.
package engine

import (
	"context"
	"sync"

	"github.com/aimd54/levellist/internal/cache"
	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/internal/notify"
	"github.com/aimd54/levellist/internal/repository"
	"github.com/aimd54/levellist/internal/service/aggregator"
	"github.com/aimd54/levellist/internal/service/ledger"
	"github.com/aimd54/levellist/internal/service/points"
	"github.com/aimd54/levellist/internal/service/positions"
	"github.com/aimd54/levellist/internal/service/recalculator"
	"github.com/aimd54/levellist/pkg/logger"
)

const userLockStripes = 64

// Options configures an Engine.
type Options struct {
	Formula points.Formula
	// AffectedUsersOnly re-aggregates only users holding approved records on
	// levels whose points changed. When false every list change re-aggregates
	// all users.
	AffectedUsersOnly bool
}

// DefaultOptions returns the production formula with the affected-users path enabled.
func DefaultOptions() Options {
	return Options{Formula: points.Default(), AffectedUsersOnly: true}
}

// Engine implements the level list operations.
//
// Lock order is list locks (main before legacy), then one user lock, then the
// database transaction.
type Engine struct {
	store *repository.Store
	cache *cache.ListCache
	sink  notify.Sink
	opts  Options
	log   *logger.Logger
	lists map[models.ListType]*sync.RWMutex
	users [userLockStripes]sync.Mutex
}

// New creates an engine.
func New(store *repository.Store, listCache *cache.ListCache, sink notify.Sink, opts Options, log *logger.Logger) *Engine {
	if sink == nil {
		sink = notify.Nop{}
	}
	lists := make(map[models.ListType]*sync.RWMutex, len(models.Lists))
	for _, l := range models.Lists {
		lists[l] = &sync.RWMutex{}
	}
	return &Engine{
		store: store,
		cache: listCache,
		sink:  sink,
		opts:  opts,
		log:   log.Component("engine"),
		lists: lists,
	}
}

// services bundles the domain services bound to one store or transaction.
type services struct {
	store      *repository.Store
	shifter    *positions.Shifter
	recalc     *recalculator.Service
	aggregator *aggregator.Service
	ledger     *ledger.Service
}

func (e *Engine) bind(store *repository.Store) *services {
	zl := e.log.Zerolog()
	agg := aggregator.NewService(store.Records, store.Levels, store.Users, e.opts.Formula, zl)
	return &services{
		store:      store,
		shifter:    positions.NewShifter(store.Levels),
		recalc:     recalculator.NewService(store.Levels, store.Records, e.opts.Formula, zl),
		aggregator: agg,
		ledger:     ledger.NewService(store.Records, store.Levels, store.Users, agg, zl),
	}
}

// inTx runs fn with services bound to a single transaction.
func (e *Engine) inTx(ctx context.Context, fn func(s *services) error) error {
	return e.store.Transaction(ctx, func(tx *repository.Store) error {
		return fn(e.bind(tx))
	})
}

// lockLists takes the locks of the given lists in lock order and returns the
// matching unlock function.
func (e *Engine) lockLists(write bool, lists ...models.ListType) func() {
	var held []*sync.RWMutex
	for _, l := range models.Lists {
		if !containsList(lists, l) {
			continue
		}
		mu := e.lists[l]
		if write {
			mu.Lock()
		} else {
			mu.RLock()
		}
		held = append(held, mu)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			if write {
				held[i].Unlock()
			} else {
				held[i].RUnlock()
			}
		}
	}
}

func containsList(lists []models.ListType, l models.ListType) bool {
	for _, x := range lists {
		if x == l {
			return true
		}
	}
	return false
}

func (e *Engine) userLock(userID uint) *sync.Mutex {
	return &e.users[userID%userLockStripes]
}

// lockLevel write-locks the level's current list plus extra and returns the
// level as read under the lock.
func (e *Engine) lockLevel(ctx context.Context, id uint, extra ...models.ListType) (*models.Level, func(), error) {
	for {
		level, err := e.store.Levels.GetByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}

		unlock := e.lockLists(true, append([]models.ListType{level.List}, extra...)...)
		current, err := e.store.Levels.GetByID(ctx, id)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if current.List == level.List {
			return current, unlock, nil
		}
		// Moved to another list between the two reads.
		unlock()
	}
}

// recomputeUsers re-aggregates each user under its lock. Callers hold the list locks.
func (e *Engine) recomputeUsers(ctx context.Context, userIDs []uint) error {
	for _, id := range userIDs {
		if _, err := e.recomputeUser(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) recomputeUser(ctx context.Context, userID uint) (float64, error) {
	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	var total float64
	err := e.inTx(ctx, func(s *services) error {
		var err error
		total, err = s.aggregator.Recompute(ctx, userID)
		return err
	})
	return total, err
}

func (e *Engine) notify(ctx context.Context, kind notify.Kind, payload map[string]interface{}) {
	if err := e.sink.Notify(ctx, notify.NewEvent(kind, payload)); err != nil {
		e.log.Warn().Err(err).Str("kind", string(kind)).Msg("Notification sink refused event")
	}
}

type actorKey struct{}

// WithActor attaches the name of the admin performing an operation to ctx.
// It is stored in the level history.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the admin name attached by WithActor, or "".
func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

func (e *Engine) recordHistory(ctx context.Context, entry *models.LevelHistory) {
	entry.Actor = ActorFrom(ctx)
	if err := e.store.History.Create(ctx, entry); err != nil {
		e.log.Warn().Err(err).Uint("level_id", entry.LevelID).Str("action", entry.Action).Msg("Failed to write level history")
	}
}
