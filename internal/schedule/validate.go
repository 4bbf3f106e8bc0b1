package schedule

import (
	"strings"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// ValidateItem checks user input and returns the item with canonical
// "HH:MM" times and action. Overnight windows (end <= start) are rejected.
func ValidateItem(item domain.SupervisionItem) (domain.SupervisionItem, error) {
	item = item.Clone()
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return item, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	start, err := ParseClock(item.Start)
	if err != nil {
		return item, &domain.ValidationError{Field: "start", Reason: err.Error()}
	}
	end, err := ParseClock(item.End)
	if err != nil {
		return item, &domain.ValidationError{Field: "end", Reason: err.Error()}
	}
	if !start.Before(end) {
		return item, &domain.ValidationError{Field: "end", Reason: "end time must be later than start time"}
	}
	item.Start = start.String()
	item.End = end.String()

	action, err := domain.ParseAction(string(item.Action))
	if err != nil {
		return item, &domain.ValidationError{Field: "action", Reason: err.Error()}
	}
	item.Action = action

	seen := make(map[string]bool, len(item.Blacklist))
	for i, e := range item.Blacklist {
		name, err := ValidateProcessName(e.Name)
		if err != nil {
			return item, err
		}
		key := strings.ToLower(name)
		if seen[key] {
			return item, &domain.ValidationError{Field: "blacklist", Reason: "duplicate process " + name}
		}
		seen[key] = true
		item.Blacklist[i].Name = name
	}
	if item.Blacklist == nil {
		item.Blacklist = []domain.BlacklistEntry{}
	}
	return item, nil
}

// ValidateProcessName trims and checks a blacklist process name.
func ValidateProcessName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &domain.ValidationError{Field: "process", Reason: "name must not be empty"}
	}
	if strings.ContainsAny(name, "*?[") {
		return "", &domain.ValidationError{Field: "process", Reason: "wildcards are not supported, use the exact process name"}
	}
	return name, nil
}
