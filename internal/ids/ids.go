// Package ids issues the human-facing identifiers for sales and orders.
package ids

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SalePrefix  = "SALE"
	OrderPrefix = "ORD"

	suffixLen = 6
)

type Generator interface {
	SaleNumber() string
	OrderNumber() string
}

// Timestamped formats identifiers as <PREFIX>-<unix millis>-<6 hex chars>,
// the suffix taken from a random UUID. Uniqueness is finally enforced by the
// UNIQUE constraints on sale_number and order_number.
type Timestamped struct {
	now func() time.Time
}

func NewTimestamped() *Timestamped {
	return &Timestamped{now: time.Now}
}

// NewTimestampedWithClock is for tests that need a fixed clock.
func NewTimestampedWithClock(now func() time.Time) *Timestamped {
	return &Timestamped{now: now}
}

func (g *Timestamped) SaleNumber() string {
	return g.next(SalePrefix)
}

func (g *Timestamped) OrderNumber() string {
	return g.next(OrderPrefix)
}

func (g *Timestamped) next(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, g.now().UnixMilli(), randomSuffix())
}

func randomSuffix() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:suffixLen])
}
