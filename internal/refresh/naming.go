package refresh

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gridiron-data/nflrefresh/internal/storage"
	"github.com/gridiron-data/nflrefresh/pkg/nflstats"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// RealClock returns the local wall-clock time.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.T }

// dateLayout is the YYYYMMDD stamp used in player stats file names.
const dateLayout = "20060102"

// FileName returns the output file name for one season.
//
//	weekly:       weekly_{season}[_weeks_{w1}_{w2}...].parquet
//	player_stats: player_stats_{season}_{YYYYMMDD}.parquet
//
// Weeks keep request order. The date is the local calendar day of now.
func FileName(mode nflstats.Mode, season int, weeks []int, now time.Time) (string, error) {
	var b strings.Builder
	switch mode {
	case nflstats.ModeWeekly:
		b.WriteString("weekly_")
		b.WriteString(strconv.Itoa(season))
		if len(weeks) > 0 {
			b.WriteString("_weeks")
			for _, w := range weeks {
				b.WriteByte('_')
				b.WriteString(strconv.Itoa(w))
			}
		}
	case nflstats.ModePlayerStats:
		fmt.Fprintf(&b, "player_stats_%d_%s", season, now.Local().Format(dateLayout))
	default:
		return "", fmt.Errorf("%w: unknown mode %q", nflstats.ErrInvalidRequest, mode)
	}
	b.WriteString(storage.FileExtension)
	return b.String(), nil
}
