package alerts

import (
	"strconv"
	"strings"

	"github.com/gateload/gateload/pkg/types"
)

// facts is what a condition is evaluated against: one record plus the
// checkpoint's running RED streak.
type facts struct {
	rec       types.HistoryRecord
	redStreak int
}

// evalCondition evaluates a rule condition string against a record.
//
// Supported expressions (field operator value):
//
//	utilization > 0.9       (alias: rho)
//	smoothed_rate > 12      (alias: lambda_hat)
//	service_rate < 1        (alias: mu)
//	count >= 20             (alias: n_t)
//	red_streak >= 5
//	level == RED
//	level != GREEN
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, f facts) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "level" {
		want := types.Level(strings.ToUpper(rhs))
		switch op {
		case "==":
			return f.rec.Level == want, f.rec.Utilization
		case "!=":
			return f.rec.Level != want, f.rec.Utilization
		}
		return false, 0
	}

	v, ok := numericField(field, f)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value.
func numericField(field string, f facts) (float64, bool) {
	switch field {
	case "utilization", "rho":
		return f.rec.Utilization, true
	case "smoothed_rate", "lambda_hat":
		return f.rec.SmoothedRate, true
	case "service_rate", "mu":
		return f.rec.ServiceRate, true
	case "count", "n_t":
		return float64(f.rec.Count), true
	case "red_streak":
		return float64(f.redStreak), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
