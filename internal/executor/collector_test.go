package executor

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector_ConcurrentAdd(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Add(Result{Test: fmt.Sprintf("t%d-%d", i, j)})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, c.Len())
	assert.Len(t, c.Results(), 1000)
}

func TestCollector_ResultsIsCopy(t *testing.T) {
	c := NewCollector()
	c.Add(Result{Test: "a"})

	got := c.Results()
	got[0].Test = "changed"

	assert.Equal(t, "a", c.Results()[0].Test)
}

func TestCollector_Merge(t *testing.T) {
	c := NewCollector()
	c.Add(Result{Test: "a", Worker: "w1", Try: 1, Cases: []CaseResult{pass("x")}})
	c.Add(Result{Test: "b", Worker: "w2", Try: 1, Cases: []CaseResult{fail("x")}})

	report := c.Merge()

	assert.Len(t, report.Results, 2)
	assert.Equal(t, 2, report.Summary.Cases)
	assert.Equal(t, 1, report.Summary.Passed())
	assert.Equal(t, 1, report.Summary.Failed())
	assert.Equal(t, 2, report.Summary.Workers)
}

func TestCollector_Empty(t *testing.T) {
	c := NewCollector()

	assert.Zero(t, c.Len())
	assert.NotNil(t, c.Results())
	assert.Zero(t, c.Merge().Summary.Entries)
}
