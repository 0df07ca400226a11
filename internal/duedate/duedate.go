// Package duedate turns user input into the YYYY-MM-DD form stored in
// schema.Fields.DueDate. Besides literal dates it understands phrases such
// as "tomorrow", "next friday" or "in 3 days".
package duedate

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/mschirtzinger/tsync/internal/schema"
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Parse returns the due date for input relative to now. Empty input and
// "none" clear the date and return "".
func Parse(input string, now time.Time) (string, error) {
	s := strings.TrimSpace(input)
	switch strings.ToLower(s) {
	case "", "none", "-":
		return "", nil
	case "today":
		return now.Format(schema.DateLayout), nil
	}

	if t, err := time.Parse(schema.DateLayout, s); err == nil {
		return t.Format(schema.DateLayout), nil
	}

	r, err := parser.Parse(s, now)
	if err != nil {
		return "", fmt.Errorf("failed to parse due date %q: %w", input, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized due date %q (use YYYY-MM-DD or a phrase like \"next friday\")", input)
	}
	return r.Time.Format(schema.DateLayout), nil
}
