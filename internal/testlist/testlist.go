// Package testlist loads the test items a run distributes over its workers.
package testlist

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aryankumar/shardrun/internal/util"
)

// Item is one schedulable unit of work: a test binary or suite and,
// optionally, the subset of its cases to run.
type Item struct {
	// Name identifies the test in results and logs
	Name string `yaml:"name" json:"name"`

	// Command is the argv run by the local backend, or the container
	// command for the kube backend
	Command []string `yaml:"command,omitempty" json:"command,omitempty"`

	// Cases restricts the run to these cases. Empty means all cases.
	Cases []string `yaml:"cases,omitempty" json:"cases,omitempty"`

	// Env is added to the environment of the test command
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Timeout bounds one attempt. Zero uses the run default.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Image is the container image (kube backend only)
	Image string `yaml:"image,omitempty" json:"image,omitempty"`
}

// String returns the name, with the case count when narrowed
func (it Item) String() string {
	if len(it.Cases) == 0 {
		return it.Name
	}
	return fmt.Sprintf("%s[%d cases]", it.Name, len(it.Cases))
}

// Narrow returns a copy of the item restricted to cases
func (it Item) Narrow(cases []string) Item {
	out := it
	out.Cases = slices.Clone(cases)
	out.Command = slices.Clone(it.Command)
	if it.Env != nil {
		out.Env = make(map[string]string, len(it.Env))
		for k, v := range it.Env {
			out.Env[k] = v
		}
	}
	return out
}

// List is the content of a test list file
type List struct {
	Tests []Item `yaml:"tests" json:"tests"`
}

// Load reads a test list from a YAML or JSON file.
func Load(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test list: %w", err)
	}

	list, err := Parse(data)
	if err != nil {
		return nil, util.WrapErrorf(err, "%s", path)
	}
	return list, nil
}

// Parse decodes and validates a test list. JSON input is accepted since
// it is valid YAML.
func Parse(data []byte) (*List, error) {
	var list List
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidTestList, err)
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}
	return &list, nil
}

// Validate checks that every item is runnable and uniquely named
func (l *List) Validate() error {
	errs := util.NewMultiError(nil)
	seen := make(map[string]bool, len(l.Tests))

	for i, it := range l.Tests {
		switch {
		case it.Name == "":
			errs.Add(fmt.Errorf("%w: test #%d has no name", util.ErrInvalidTestList, i+1))
			continue
		case seen[it.Name]:
			errs.Add(fmt.Errorf("%w: duplicate test %q", util.ErrInvalidTestList, it.Name))
		}
		seen[it.Name] = true

		if len(it.Command) == 0 && it.Image == "" {
			errs.Add(fmt.Errorf("%w: test %q needs a command or an image", util.ErrInvalidTestList, it.Name))
		}
		if it.Timeout < 0 {
			errs.Add(fmt.Errorf("%w: test %q has a negative timeout", util.ErrInvalidTestList, it.Name))
		}
	}

	return errs.ErrorOrNil()
}

// Names returns the item names in order
func Names(items []Item) []string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return names
}
