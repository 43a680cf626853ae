package browser

import (
	"time"
)

// Status of a scenario test.
type Status string

// Test statuses.
const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one scenario test, or of a failed afterAll
// hook.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report lists the results of a scenario script in run order.
type Report struct {
	File    string        `json:"file"`
	Results []Result      `json:"results"`
	Elapsed time.Duration `json:"elapsed"`
}

// Count returns the number of results with status st.
func (r *Report) Count(st Status) int {
	var n int
	for _, res := range r.Results {
		if res.Status == st {
			n++
		}
	}
	return n
}

// OK reports whether no test failed.
func (r *Report) OK() bool {
	return r.Count(StatusFailed) == 0
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
}
