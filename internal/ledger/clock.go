// internal/ledger/clock.go
package ledger

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Clock supplies "now" and the reference timezone that decides which
// calendar day a ledger belongs to.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type systemClock struct {
	loc *time.Location
}

// NewClock returns a wall clock pinned to the named IANA timezone. An empty
// name means UTC.
func NewClock(timezone string) (Clock, error) {
	if timezone == "" {
		return systemClock{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return systemClock{loc: loc}, nil
}

func (c systemClock) Now() time.Time { return time.Now().In(c.loc) }
func (c systemClock) Location() *time.Location { return c.loc }

// DateOf formats t as YYYY-MM-DD in the clock's timezone.
func DateOf(c Clock, t time.Time) string {
	return t.In(c.Location()).Format(dateLayout)
}
