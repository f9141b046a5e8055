package executor

import "sync"

// Collector is the thread-safe results sink used by every run
type Collector struct {
	mu      sync.Mutex
	results []Result
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		results: make([]Result, 0),
	}
}

// Add appends a result
func (c *Collector) Add(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results returns a copy of everything recorded so far
func (c *Collector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

// Len returns the number of recorded entries
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Report is the merged outcome of a run
type Report struct {
	Results []Result `json:"results" yaml:"results"`
	Summary Summary  `json:"summary" yaml:"summary"`
}

// Merge returns every recorded entry together with their summary
func (c *Collector) Merge() Report {
	results := c.Results()
	return Report{
		Results: results,
		Summary: Summarize(results),
	}
}
