package testlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryankumar/shardrun/internal/executor"
)

func TestParseSummary(t *testing.T) {
	data := []byte(`{"cases":[
		{"name":"HttpCache.Basic","status":"PASS","duration_ms":1500},
		{"name":"HttpCache.Range","status":"failure","log":"expected 206"}
	]}`)

	s, err := ParseSummary(data)
	require.NoError(t, err)

	cases := s.CaseResults()
	require.Len(t, cases, 2)
	assert.Equal(t, executor.CaseResult{Name: "HttpCache.Basic", Status: executor.StatusPass, Duration: 1500 * time.Millisecond}, cases[0])
	assert.Equal(t, executor.StatusFail, cases[1].Status)
	assert.Equal(t, "expected 206", cases[1].Log)
}

func TestParseSummary_Invalid(t *testing.T) {
	_, err := ParseSummary([]byte("not json"))
	assert.Error(t, err)

	_, err = ParseSummary([]byte(`{"cases":[{"status":"PASS"}]}`))
	assert.ErrorContains(t, err, "has no name")
}

func TestSyntheticCases(t *testing.T) {
	whole := SyntheticCases(Item{Name: "suite"}, executor.StatusTimeout, "deadline exceeded")
	assert.Equal(t, []executor.CaseResult{{Name: "suite", Status: executor.StatusTimeout, Log: "deadline exceeded"}}, whole)

	narrowed := SyntheticCases(Item{Name: "suite", Cases: []string{"a", "b"}}, executor.StatusFail, "")
	require.Len(t, narrowed, 2)
	assert.Equal(t, "a", narrowed[0].Name)
	assert.Equal(t, executor.StatusFail, narrowed[1].Status)
}

func TestRetry(t *testing.T) {
	item := Item{Name: "suite", Command: []string{"run"}}

	t.Run("all passed", func(t *testing.T) {
		res := executor.Result{Cases: []executor.CaseResult{{Name: "a", Status: executor.StatusPass}}}
		assert.Nil(t, Retry(item, res))
	})

	t.Run("whole item failed", func(t *testing.T) {
		res := executor.Result{Cases: SyntheticCases(item, executor.StatusFail, "")}
		retry := Retry(item, res)
		require.NotNil(t, retry)
		assert.Equal(t, "suite", retry.Name)
		assert.Empty(t, retry.Cases)
	})

	t.Run("command failure keeps requested cases", func(t *testing.T) {
		narrowed := item.Narrow([]string{"a", "b"})
		res := executor.Result{Cases: []executor.CaseResult{
			{Name: "a", Status: executor.StatusPass},
			{Name: "suite", Status: executor.StatusCrash},
		}}
		retry := Retry(narrowed, res)
		require.NotNil(t, retry)
		assert.Equal(t, []string{"a", "b"}, retry.Cases)
	})

	t.Run("narrowed to failing cases", func(t *testing.T) {
		res := executor.Result{Cases: []executor.CaseResult{
			{Name: "a", Status: executor.StatusPass},
			{Name: "b", Status: executor.StatusCrash},
			{Name: "c", Status: executor.StatusSkip},
			{Name: "d", Status: executor.StatusFail},
		}}
		retry := Retry(item, res)
		require.NotNil(t, retry)
		assert.Equal(t, []string{"b", "d"}, retry.Cases)
		assert.Equal(t, item.Command, retry.Command)
	})
}

func TestBuildCases(t *testing.T) {
	it := Item{Name: "net", Command: []string{"run"}, Cases: []string{"a", "b"}}

	tests := []struct {
		name      string
		summary   string
		status    executor.Status
		wantNames []string
		wantErr   bool
	}{
		{"no summary", "", executor.StatusFail, []string{"a", "b"}, false},
		{"blank summary", "  \n", executor.StatusPass, []string{"a", "b"}, false},
		{"garbled summary", "{", executor.StatusCrash, []string{"a", "b"}, true},
		{"empty case list", `{"cases":[]}`, executor.StatusPass, []string{"a", "b"}, false},
		{"summary wins", `{"cases":[{"name":"a","status":"PASS"}]}`, executor.StatusPass, []string{"a"}, false},
		{"failed after passing cases", `{"cases":[{"name":"a","status":"PASS"}]}`, executor.StatusCrash, []string{"a", "net"}, false},
		{"failed with failing case", `{"cases":[{"name":"b","status":"FAIL"}]}`, executor.StatusFail, []string{"b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cases, err := BuildCases(it, []byte(tt.summary), tt.status, "log")

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			names := make([]string, len(cases))
			for i, c := range cases {
				names[i] = c.Name
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestBuildCases_RetriesWholeCommandAfterCrash(t *testing.T) {
	it := Item{Name: "net", Command: []string{"run"}, Cases: []string{"a", "b"}}

	cases, err := BuildCases(it, []byte(`{"cases":[{"name":"a","status":"PASS"}]}`), executor.StatusCrash, "segfault")
	require.NoError(t, err)

	retry := Retry(it, executor.Result{Test: "net", Cases: cases})
	require.NotNil(t, retry)
	assert.Equal(t, []string{"a", "b"}, retry.Cases)
}
