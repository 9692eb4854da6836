package store

import (
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/ticket-desk/internal/domain"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

// UndatedDay labels the group of chat messages that carry no timestamp.
const UndatedDay = "undated"

// ParseStatusFilter maps a filter name to a StatusFilter. An empty name means All.
func ParseStatusFilter(name string) (domain.StatusFilter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "all":
		return domain.FilterAll, nil
	case "pending":
		return domain.FilterPending, nil
	case "completed":
		return domain.FilterCompleted, nil
	default:
		return "", apperrors.NewValidationError("unknown status filter", map[string]any{"status": name})
	}
}

// GroupChatByDay groups chat by the calendar day of each message in loc, oldest day
// first. Message order inside a day is chat order, not timestamp order, so a day
// group keeps the acknowledgement sequence even when gateway clocks disagree.
// Only the day groups themselves are sorted. Untimestamped messages form a
// leading UndatedDay group.
func GroupChatByDay(chat []domain.ChatMessage, loc *time.Location) []domain.ChatDay {
	if loc == nil {
		loc = time.UTC
	}
	var undated []domain.ChatMessage
	byDay := make(map[string][]domain.ChatMessage)
	days := make([]string, 0)
	for _, msg := range chat {
		if msg.CreatedAt.IsZero() {
			undated = append(undated, msg)
			continue
		}
		day := msg.CreatedAt.In(loc).Format(time.DateOnly)
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], msg)
	}
	// ISO dates sort lexically.
	sort.Strings(days)

	out := make([]domain.ChatDay, 0, len(days)+1)
	if len(undated) > 0 {
		out = append(out, domain.ChatDay{Day: UndatedDay, Messages: undated})
	}
	for _, day := range days {
		out = append(out, domain.ChatDay{Day: day, Messages: byDay[day]})
	}
	return out
}
