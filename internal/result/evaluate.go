package result

import (
	"math"
	"time"

	"forecaster/internal/domain"
	"forecaster/internal/util"
)

// Returns summarises the position results of one partition. Weekly, monthly
// and quarterly figures are means across periods of each period's mean
// daily result. Every field is NaN for an empty partition.
type Returns struct {
	AverageDaily     float64 `json:"average_daily_returns" yaml:"average_daily_returns"`
	AverageWeekly    float64 `json:"average_weekly_returns" yaml:"average_weekly_returns"`
	AverageMonthly   float64 `json:"average_monthly_returns" yaml:"average_monthly_returns"`
	AverageQuarterly float64 `json:"average_quarterly_return" yaml:"average_quarterly_return"`
}

// Evaluation maps each partition to its return summary.
type Evaluation map[domain.PartitionName]Returns

// Evaluate computes the return summary of every partition.
func (a *Accountant) Evaluate() Evaluation {
	ev := make(Evaluation, len(domain.PartitionNames))
	for _, name := range domain.PartitionNames {
		ev[name] = Summarize(a.impacts[name])
	}
	return ev
}

// Summarize computes the return summary of a single impact series.
func Summarize(recs []domain.ImpactRecord) Returns {
	return Returns{
		AverageDaily:     MeanOfMeans(recs, util.Daily),
		AverageWeekly:    MeanOfMeans(recs, util.Weekly),
		AverageMonthly:   MeanOfMeans(recs, util.Monthly),
		AverageQuarterly: MeanOfMeans(recs, util.Quarterly),
	}
}

// MeanOfMeans groups position results into calendar periods, averages each
// non-empty period and returns the mean of those averages. Periods with no
// rows are skipped rather than counted as zero. Records must be in date
// order. The result is NaN when recs is empty.
func MeanOfMeans(recs []domain.ImpactRecord, p util.Period) float64 {
	if len(recs) == 0 {
		return math.NaN()
	}

	var (
		total   float64
		buckets int
		cur     time.Time
		sum     float64
		n       int
	)
	flush := func() {
		if n > 0 {
			total += sum / float64(n)
			buckets++
		}
		sum, n = 0, 0
	}

	for _, r := range recs {
		end := util.PeriodEnd(r.Date, p)
		if !end.Equal(cur) {
			flush()
			cur = end
		}
		sum += r.PositionResult
		n++
	}
	flush()

	return total / float64(buckets)
}
