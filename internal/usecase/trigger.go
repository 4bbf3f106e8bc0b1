package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
	"github.com/eliteGoblin/focusd/supervisor/internal/schedule"
)

// DefaultShutdownDelay gives the user time to read the forced alert.
const DefaultShutdownDelay = 60 * time.Second

// AlertTitle is the title of the forced reminder shown on window entry.
const AlertTitle = "Supervision reminder"

var motivations = []string{
	"Persistence wins!",
	"The future belongs to the disciplined!",
	"Success takes consistency!",
	"Today's effort is tomorrow's reward!",
}

// TriggerConfig holds time-loop options.
type TriggerConfig struct {
	ShutdownDelay time.Duration
	// RepeatActions fires on every tick inside a window instead of once per window.
	RepeatActions bool
}

// ActionTriggerImpl executes item actions when their window is entered.
// By default it is edge-triggered: each item fires once per window instance
// (item ID + calendar day) and is re-armed when it leaves the window.
type ActionTriggerImpl struct {
	config   TriggerConfig
	store    domain.ConfigStore
	session  domain.SessionController
	notifier domain.Notifier
	journal  domain.Journal
	clock    domain.Clock
	logger   *zap.Logger

	mu    sync.Mutex
	fired map[string]string // item ID -> window key
}

// NewActionTrigger creates the time enforcement loop body.
func NewActionTrigger(
	config TriggerConfig,
	store domain.ConfigStore,
	session domain.SessionController,
	notifier domain.Notifier,
	journal domain.Journal,
	clock domain.Clock,
	logger *zap.Logger,
) *ActionTriggerImpl {
	if config.ShutdownDelay <= 0 {
		config.ShutdownDelay = DefaultShutdownDelay
	}
	return &ActionTriggerImpl{
		config:   config,
		store:    store,
		session:  session,
		notifier: notifier,
		journal:  journal,
		clock:    clock,
		logger:   logger,
		fired:    make(map[string]string),
	}
}

// Tick evaluates every item once and fires the actions due now.
func (t *ActionTriggerImpl) Tick(ctx context.Context) []domain.FiredAction {
	now := t.clock.Now()
	cfg := t.store.Snapshot()

	t.mu.Lock()
	defer t.mu.Unlock()

	var out []domain.FiredAction
	inWindow := make(map[string]bool, len(cfg.Items))
	for _, item := range cfg.Items {
		if ctx.Err() != nil {
			break
		}
		if !schedule.InWindow(item, now) {
			continue
		}
		inWindow[item.ID] = true

		key := windowKey(item, now)
		if !t.config.RepeatActions && t.fired[item.ID] == key {
			continue
		}
		t.fired[item.ID] = key

		fa := t.execute(item, now)
		if fa.Action != domain.ActionBlacklistOnly {
			out = append(out, fa)
		}
	}

	// Re-arm items that have left their window.
	for id := range t.fired {
		if !inWindow[id] {
			delete(t.fired, id)
		}
	}
	return out
}

func windowKey(item domain.SupervisionItem, now time.Time) string {
	return fmt.Sprintf("%s|%s|%s-%s", now.Format("2006-01-02"), item.ID, item.Start, item.End)
}

func (t *ActionTriggerImpl) execute(item domain.SupervisionItem, now time.Time) domain.FiredAction {
	fa := domain.FiredAction{
		ItemID:   item.ID,
		ItemName: item.Name,
		Action:   item.Action,
		FiredAt:  now,
	}

	switch item.Action {
	case domain.ActionShutdown:
		fa.Err = t.session.RequestShutdown(t.config.ShutdownDelay)
		t.forceAlert(item)
	case domain.ActionLock:
		fa.Err = t.session.LockSession()
		t.forceAlert(item)
	case domain.ActionBlacklistOnly:
		// The process loop does the work.
		return fa
	default:
		t.forceAlert(item)
	}

	if fa.Err != nil {
		t.logger.Warn("supervision action failed",
			zap.String("item", item.Name),
			zap.String("action", string(item.Action)),
			zap.Error(fa.Err))
	} else {
		t.logger.Info("supervision action fired",
			zap.String("item", item.Name),
			zap.String("action", string(item.Action)))
	}

	if t.journal != nil {
		detail := string(item.Action)
		if fa.Err != nil {
			detail += ": " + fa.Err.Error()
		}
		if err := t.journal.Record(domain.Event{At: now, Kind: domain.EventActionFired, Item: item.Name, Detail: detail}); err != nil {
			t.logger.Debug("failed to journal action", zap.Error(err))
		}
	}
	return fa
}

func (t *ActionTriggerImpl) forceAlert(item domain.SupervisionItem) {
	msg := fmt.Sprintf("Current supervision window: %s\n%s - %s\n\n%s",
		item.Name, item.Start, item.End, motivations[rand.IntN(len(motivations))])
	t.notifier.Alert(AlertTitle, msg)
}

// Ensure ActionTriggerImpl implements domain.ActionTrigger.
var _ domain.ActionTrigger = (*ActionTriggerImpl)(nil)
