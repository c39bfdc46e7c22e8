package timeline

import "time"

// PlanOpts configures keep-list planning.
type PlanOpts struct {
	// IncludeTrailingKeep emits a final keep interval from the end of the
	// last silence up to the total duration. Off by default, which drops
	// anything after the last detected silence.
	IncludeTrailingKeep bool
}

// Plan converts an ordered silence list into the keep list that covers the
// non-silent ranges of [0, total].
//
// An empty silence list yields a nil keep list: callers decide what
// "nothing to cut" means for them.
func Plan(silences List, total time.Duration, opts PlanOpts) List {
	if len(silences) == 0 {
		return nil
	}

	var keeps List
	var cursor time.Duration
	for _, s := range silences {
		if s.Start > cursor {
			end := s.Start
			if total > 0 && end > total {
				end = total
			}
			if end > cursor {
				keeps = append(keeps, Interval{Start: cursor, End: end})
			}
		}
		if s.End > cursor {
			cursor = s.End
		}
	}

	if opts.IncludeTrailingKeep && total > cursor {
		keeps = append(keeps, Interval{Start: cursor, End: total})
	}

	return keeps
}
