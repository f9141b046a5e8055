package session

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// WorkerHealth is the liveness of one worker
type WorkerHealth struct {
	Worker  string        `json:"worker" yaml:"worker"`
	Backend string        `json:"backend" yaml:"backend"`
	Context string        `json:"context,omitempty" yaml:"context,omitempty"`
	Alive   bool          `json:"alive" yaml:"alive"`
	Latency time.Duration `json:"latency" yaml:"latency"`
	Detail  string        `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// HealthReport lists worker liveness; it renders as a table
type HealthReport []WorkerHealth

// Sort orders the report by worker name
func (r HealthReport) Sort() {
	slices.SortFunc(r, func(a, b WorkerHealth) int {
		return strings.Compare(a.Worker, b.Worker)
	})
}

// Alive counts the live workers
func (r HealthReport) Alive() int {
	n := 0
	for _, h := range r {
		if h.Alive {
			n++
		}
	}
	return n
}

// Headers implements output.Tabular
func (r HealthReport) Headers() []string {
	return []string{"WORKER", "BACKEND", "ALIVE", "LATENCY", "DETAIL"}
}

// Rows implements output.Tabular
func (r HealthReport) Rows() [][]string {
	rows := make([][]string, len(r))
	for i, h := range r {
		rows[i] = []string{
			h.Worker,
			h.Backend,
			strconv.FormatBool(h.Alive),
			h.Latency.Round(time.Millisecond).String(),
			h.Detail,
		}
	}
	return rows
}
