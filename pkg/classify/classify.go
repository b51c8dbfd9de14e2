// Package classify provides the sensitive-content hook consumed by the
// history store. The result is advisory only: it sets the Sensitive flag on
// new items and affects nothing else.
package classify

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Classifier flags text content matching any of its compiled patterns.
// Matching is case-insensitive. A Classifier is immutable and safe for
// concurrent use.
type Classifier struct {
	globs []glob.Glob
}

// DefaultPatterns cover obvious secret shapes. They err toward false
// positives, which is acceptable for an advisory flag.
var DefaultPatterns = []string{
	"*password*",
	"*passphrase*",
	"*secret*",
	"*api_key*",
	"*apikey*",
	"*access_token*",
	"*-----begin*private key-----*",
}

// New compiles a classifier from glob patterns.
func New(patterns ...string) (*Classifier, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("classify: invalid pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return &Classifier{globs: globs}, nil
}

// Default returns a classifier over DefaultPatterns.
func Default() *Classifier {
	c, err := New(DefaultPatterns...)
	if err != nil {
		// DefaultPatterns are compile-checked by tests.
		panic(err)
	}
	return c
}

// Sensitive reports whether text matches any pattern.
func (c *Classifier) Sensitive(text string) bool {
	lowered := strings.ToLower(text)
	for _, g := range c.globs {
		if g.Match(lowered) {
			return true
		}
	}
	return false
}
