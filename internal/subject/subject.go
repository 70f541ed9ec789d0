// Package subject builds email subject lines from a topic category, a
// subtopic and the date of the coming Friday.
package subject

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the date format embedded in subjects.
const DateLayout = "2006-01-02"

// ErrUnknownCategory is returned for a category outside the closed set.
var ErrUnknownCategory = errors.New("unknown topic category")

// Category is a topic category.
type Category string

const (
	// None puts today's date in front of the subtopic.
	None   Category = ""
	NonONC Category = "Non-ONC"
	ONC    Category = "ONC"
	NoDate Category = "No Date"
)

// Categories lists the categories in form order.
var Categories = []Category{None, NonONC, ONC, NoDate}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// FridayPolicy decides which Friday a Friday itself maps to.
type FridayPolicy string

const (
	// FridayToday keeps today's date when today is Friday.
	FridayToday FridayPolicy = "today"
	// FridayNextWeek moves to the following Friday.
	FridayNextWeek FridayPolicy = "next-week"
)

// ParseFridayPolicy validates a configured policy name.
func ParseFridayPolicy(s string) (FridayPolicy, error) {
	switch p := FridayPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FridayToday, FridayNextWeek:
		return p, nil
	case "":
		return FridayToday, nil
	}
	return "", fmt.Errorf("unknown friday policy %q", s)
}

// UpcomingFriday returns the date of the Friday on or after t, or strictly
// after t under FridayNextWeek. The clock time of t is preserved.
func UpcomingFriday(t time.Time, policy FridayPolicy) time.Time {
	days := (int(time.Friday) - int(t.Weekday()) + 7) % 7
	if days == 0 && policy == FridayNextWeek {
		days = 7
	}
	return t.AddDate(0, 0, days)
}

// Generator produces subject lines relative to its clock.
type Generator struct {
	policy   FridayPolicy
	location *time.Location
	now      func() time.Time
}

// NewGenerator creates a Generator. A nil location means time.Local.
func NewGenerator(policy FridayPolicy, location *time.Location) *Generator {
	if location == nil {
		location = time.Local
	}
	return &Generator{policy: policy, location: location, now: time.Now}
}

// Generate formats "<date> <category> <subtopic>", skipping empty parts.
// No Date yields the subtopic alone; None uses today's date.
func (g *Generator) Generate(category Category, subtopic string) (string, error) {
	today := g.now().In(g.location)
	subtopic = strings.TrimSpace(subtopic)

	var parts []string
	switch category {
	case None:
		parts = []string{today.Format(DateLayout), subtopic}
	case NonONC, ONC:
		parts = []string{UpcomingFriday(today, g.policy).Format(DateLayout), string(category), subtopic}
	case NoDate:
		parts = []string{subtopic}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " "), nil
}
