package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
	"github.com/eliteGoblin/focusd/supervisor/internal/schedule"
)

// Tomato durations accepted by SetTomatoDuration, in minutes.
const (
	MinTomatoMinutes = 1
	MaxTomatoMinutes = 120
)

// ItemStatus is an item plus its derived state at a point in time.
type ItemStatus struct {
	Item       domain.SupervisionItem
	Restricted bool
	InWindow   bool
}

// Service is the boundary the UI layer (the CLI) calls into.
// Mutations go through the Guard and are written through to the store.
type Service struct {
	store  domain.ConfigStore
	guard  *Guard
	clock  domain.Clock
	logger *zap.Logger
}

// NewService creates the supervision service.
func NewService(store domain.ConfigStore, clock domain.Clock, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		guard:  NewGuard(clock),
		clock:  clock,
		logger: logger,
	}
}

// ListItems returns a copy of all items.
func (s *Service) ListItems() []domain.SupervisionItem {
	return s.store.Snapshot().Items
}

// GetItem returns the item with the given ID.
func (s *Service) GetItem(id string) (domain.SupervisionItem, error) {
	cfg := s.store.Snapshot()
	i := cfg.FindItem(id)
	if i < 0 {
		return domain.SupervisionItem{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	return cfg.Items[i], nil
}

// ResolveItem finds an item by exact ID, unique ID prefix, or exact name.
func (s *Service) ResolveItem(ref string) (domain.SupervisionItem, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.SupervisionItem{}, &domain.ValidationError{Field: "item", Reason: "must not be empty"}
	}
	items := s.ListItems()
	var matches []domain.SupervisionItem
	for _, it := range items {
		if it.ID == ref {
			return it, nil
		}
		if strings.HasPrefix(it.ID, ref) || strings.EqualFold(it.Name, ref) {
			matches = append(matches, it)
		}
	}
	switch len(matches) {
	case 0:
		return domain.SupervisionItem{}, fmt.Errorf("item %q: %w", ref, domain.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return domain.SupervisionItem{}, &domain.ValidationError{Field: "item", Reason: fmt.Sprintf("%q matches %d items, use the full id", ref, len(matches))}
	}
}

// Status returns every item with its restriction state at the current time.
func (s *Service) Status() []ItemStatus {
	now := s.clock.Now()
	items := s.ListItems()
	out := make([]ItemStatus, len(items))
	for i, it := range items {
		out[i] = ItemStatus{
			Item:       it,
			Restricted: schedule.IsItemRestricted(it, now),
			InWindow:   schedule.InWindow(it, now),
		}
	}
	return out
}

// IsRestrictedNow reports whether any item is restricted right now.
func (s *Service) IsRestrictedNow() bool {
	return schedule.IsRestricted(s.ListItems(), s.clock.Now())
}

// AddItem validates and stores a new, active item.
// If its window is already in progress, allowInWindow must be set.
func (s *Service) AddItem(item domain.SupervisionItem, allowInWindow bool) (domain.SupervisionItem, error) {
	valid, err := schedule.ValidateItem(item)
	if err != nil {
		return domain.SupervisionItem{}, err
	}
	valid.ID = uuid.NewString()
	valid.Active = true

	if !allowInWindow && schedule.Contains(valid, s.clock.Now()) {
		return domain.SupervisionItem{}, domain.ErrWindowInProgress
	}

	err = s.store.Update(func(cfg *domain.Config) error {
		cfg.Items = append(cfg.Items, valid)
		return nil
	})
	if err != nil {
		return domain.SupervisionItem{}, fmt.Errorf("failed to save item: %w", err)
	}
	s.logger.Info("item added",
		zap.String("id", valid.ID),
		zap.String("name", valid.Name),
		zap.String("window", valid.Start+"-"+valid.End),
		zap.String("action", string(valid.Action)))
	return valid, nil
}

// UpdateItem replaces the editable fields of an item. The item's active
// flag and blacklist are preserved; use the dedicated operations for those.
func (s *Service) UpdateItem(id string, item domain.SupervisionItem, allowInWindow bool) error {
	valid, err := schedule.ValidateItem(item)
	if err != nil {
		return err
	}

	err = s.mutateItem("edit", id, func(cur *domain.SupervisionItem) error {
		valid.ID = cur.ID
		valid.Active = cur.Active
		valid.Blacklist = cur.Blacklist
		if !allowInWindow && valid.Active && schedule.Contains(valid, s.clock.Now()) {
			return domain.ErrWindowInProgress
		}
		*cur = valid
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("item updated", zap.String("id", id), zap.String("name", valid.Name))
	return nil
}

// DeleteItem removes an item.
func (s *Service) DeleteItem(id string) error {
	err := s.store.Update(func(cfg *domain.Config) error {
		i := cfg.FindItem(id)
		if i < 0 {
			return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
		}
		if err := s.guard.GuardItemMutation("delete", cfg.Items[i]); err != nil {
			return err
		}
		cfg.Items = append(cfg.Items[:i], cfg.Items[i+1:]...)
		return nil
	})
	if err != nil {
		s.logDenied("delete", id, err)
		return err
	}
	s.logger.Info("item deleted", zap.String("id", id))
	return nil
}

// ToggleItemActive enables or disables an item.
func (s *Service) ToggleItemActive(id string, active bool) error {
	op := "disable"
	if active {
		op = "enable"
	}
	return s.mutateItem(op, id, func(cur *domain.SupervisionItem) error {
		cur.Active = active
		return nil
	})
}

// AddBlacklistEntry adds a process name to an item's blacklist, or to the
// global blacklist when itemID is empty.
func (s *Service) AddBlacklistEntry(itemID, name string) error {
	name, err := schedule.ValidateProcessName(name)
	if err != nil {
		return err
	}
	return s.mutateBlacklist("add to blacklist", itemID, func(list []domain.BlacklistEntry) ([]domain.BlacklistEntry, error) {
		if indexOfProcess(list, name) >= 0 {
			return nil, &domain.ValidationError{Field: "process", Reason: name + " is already blacklisted"}
		}
		return append(list, domain.BlacklistEntry{Name: name, Active: true}), nil
	})
}

// RemoveBlacklistEntry removes a process name from a blacklist.
func (s *Service) RemoveBlacklistEntry(itemID, name string) error {
	return s.mutateBlacklist("remove from blacklist", itemID, func(list []domain.BlacklistEntry) ([]domain.BlacklistEntry, error) {
		i := indexOfProcess(list, name)
		if i < 0 {
			return nil, fmt.Errorf("process %s: %w", name, domain.ErrNotFound)
		}
		return append(list[:i], list[i+1:]...), nil
	})
}

// ToggleBlacklistEntry enables or disables a blacklist entry.
func (s *Service) ToggleBlacklistEntry(itemID, name string, active bool) error {
	return s.mutateBlacklist("toggle blacklist entry", itemID, func(list []domain.BlacklistEntry) ([]domain.BlacklistEntry, error) {
		i := indexOfProcess(list, name)
		if i < 0 {
			return nil, fmt.Errorf("process %s: %w", name, domain.ErrNotFound)
		}
		list[i].Active = active
		return list, nil
	})
}

// GlobalBlacklist returns a copy of the global blacklist.
func (s *Service) GlobalBlacklist() []domain.BlacklistEntry {
	return s.store.Snapshot().GlobalBlacklist
}

// RequestQuit returns nil if the supervisor may exit now.
func (s *Service) RequestQuit() error {
	err := s.guard.GuardQuit(s.ListItems())
	if err != nil {
		s.logger.Info("quit denied", zap.Error(err))
	}
	return err
}

// TomatoDuration returns the configured focus session length.
func (s *Service) TomatoDuration() int {
	secs := s.store.Snapshot().TomatoDurationSeconds
	if secs <= 0 {
		return domain.DefaultTomatoDurationSeconds
	}
	return secs
}

// SetTomatoDuration sets the focus session length in minutes.
func (s *Service) SetTomatoDuration(minutes int) error {
	if minutes < MinTomatoMinutes || minutes > MaxTomatoMinutes {
		return &domain.ValidationError{
			Field:  "duration",
			Reason: fmt.Sprintf("must be between %d and %d minutes", MinTomatoMinutes, MaxTomatoMinutes),
		}
	}
	return s.store.Update(func(cfg *domain.Config) error {
		cfg.TomatoDurationSeconds = minutes * 60
		return nil
	})
}

// mutateItem applies fn to the item after the edit lock allows it.
func (s *Service) mutateItem(op, id string, fn func(cur *domain.SupervisionItem) error) error {
	err := s.store.Update(func(cfg *domain.Config) error {
		i := cfg.FindItem(id)
		if i < 0 {
			return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
		}
		if err := s.guard.GuardItemMutation(op, cfg.Items[i]); err != nil {
			return err
		}
		return fn(&cfg.Items[i])
	})
	if err != nil {
		s.logDenied(op, id, err)
	}
	return err
}

// mutateBlacklist applies fn to the blacklist selected by itemID.
// Item blacklists follow the item's lock; the global list follows any lock.
func (s *Service) mutateBlacklist(op, itemID string, fn func([]domain.BlacklistEntry) ([]domain.BlacklistEntry, error)) error {
	err := s.store.Update(func(cfg *domain.Config) error {
		if itemID == "" {
			if err := s.guard.GuardGlobalMutation(op, cfg.Items); err != nil {
				return err
			}
			list, err := fn(cfg.GlobalBlacklist)
			if err != nil {
				return err
			}
			cfg.GlobalBlacklist = list
			return nil
		}

		i := cfg.FindItem(itemID)
		if i < 0 {
			return fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
		}
		if err := s.guard.GuardItemMutation(op, cfg.Items[i]); err != nil {
			return err
		}
		list, err := fn(cfg.Items[i].Blacklist)
		if err != nil {
			return err
		}
		cfg.Items[i].Blacklist = list
		return nil
	})
	if err != nil {
		s.logDenied(op, itemID, err)
	}
	return err
}

func (s *Service) logDenied(op, id string, err error) {
	if domain.IsRestriction(err) || errors.Is(err, domain.ErrWindowInProgress) {
		s.logger.Info("operation refused",
			zap.String("op", op),
			zap.String("item", id),
			zap.Error(err))
	}
}

func indexOfProcess(list []domain.BlacklistEntry, name string) int {
	name = strings.TrimSpace(name)
	for i, e := range list {
		if strings.EqualFold(e.Name, name) {
			return i
		}
	}
	return -1
}
