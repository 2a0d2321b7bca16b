package core

import (
	"fmt"
	"io"
	"strconv"
	"sync"
)

// Step identifies a pipeline step.
type Step string

const (
	StepCompile  Step = "compile"
	StepRelocate Step = "relocate"
	StepTrim     Step = "trim"
)

// Reporter receives human-readable progress. It carries no machine-readable
// contract; structured data goes to the logger and the trace.
type Reporter interface {
	StepStarted(target Target, step Step)
	StepFinished(target Target, step Step)
}

// NopReporter discards progress.
type NopReporter struct{}

func (NopReporter) StepStarted(Target, Step)  {}
func (NopReporter) StepFinished(Target, Step) {}

// ConsoleReporter prints one line when a step starts and an indented line
// when it finishes:
//
//	<<< Starting to compile 'main.ts'...
//		>>> Finished compiling!
type ConsoleReporter struct {
	mu          sync.Mutex
	w           io.Writer
	headerLines int
}

// NewConsoleReporter creates a reporter writing to w. headerLines is only
// used in the wording of trim messages.
func NewConsoleReporter(w io.Writer, headerLines int) *ConsoleReporter {
	return &ConsoleReporter{w: w, headerLines: headerLines}
}

func (c *ConsoleReporter) StepStarted(target Target, step Step) {
	switch step {
	case StepCompile:
		c.printf("<<< Starting to compile '%s'...\n", target.Source)
	case StepRelocate:
		c.printf("<<< Moving '%s' to '%s'...\n", ArtifactPath(target.Source), target.Destination)
	case StepTrim:
		c.printf("<<< Removing first %s from '%s'...\n", c.lines(), target.FinalPath())
	}
}

func (c *ConsoleReporter) StepFinished(target Target, step Step) {
	switch step {
	case StepCompile:
		c.printf("\t>>> Finished compiling!\n")
	case StepRelocate:
		c.printf("\t>>> Finished moving to '%s'!\n", target.Destination)
	case StepTrim:
		c.printf("\t>>> Finished removing the first %s from '%s'!\n", c.lines(), target.FinalPath())
	}
}

func (c *ConsoleReporter) printf(format string, args ...any) {
	if c == nil || c.w == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

var numberWords = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}

func (c *ConsoleReporter) lines() string {
	n := c.headerLines
	word := strconv.Itoa(n)
	if n >= 0 && n < len(numberWords) {
		word = numberWords[n]
	}
	if n == 1 {
		return word + " line"
	}
	return word + " lines"
}
