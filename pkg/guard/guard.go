// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package guard is the lexical moderation gate that runs before any model
// call. A request is rejected when it contains a denylisted term as a whole
// word, compared case-insensitively with Unicode word boundaries.
package guard

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
)

// RejectionMessage is the user-facing reason for a rejected request.
const RejectionMessage = "Let’s keep it respectful. Please rephrase your request without offensive language."

// DefaultTerms is the built-in denylist.
var DefaultTerms = []string{
	"fuck",
	"shit",
	"bastard",
	"asshole",
	"retard",
	"prost",
	"idiot",
	"dobitoc",
}

// ErrRejected is matched by every *RejectedError.
var ErrRejected = errors.New("request rejected by moderation guard")

// RejectedError reports the matched term. Its Error text is the polite
// rejection message, safe to show to the user.
type RejectedError struct {
	Term string
}

func (e *RejectedError) Error() string { return RejectionMessage }

// Is makes errors.Is(err, ErrRejected) hold.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Verdict is the result of Check.
type Verdict struct {
	Rejected bool
	// Term is the denylisted term that matched, lower-cased.
	Term   string
	Reason string
	// Err is set when the text could not be scanned. Such text is rejected.
	Err error
}

// Guard is safe for concurrent use; its base denylist never changes after New.
type Guard struct {
	terms []string
	base  *regexp2.Regexp
}

// New builds a guard over terms. Blank and duplicate terms are dropped.
func New(terms ...string) (*Guard, error) {
	normalized := normalize(terms)
	re, err := compile(normalized)
	if err != nil {
		return nil, err
	}
	return &Guard{terms: normalized, base: re}, nil
}

// Default returns a guard over DefaultTerms.
func Default() *Guard {
	g, err := New(DefaultTerms...)
	if err != nil {
		panic(fmt.Sprintf("guard: default denylist does not compile: %v", err))
	}
	return g
}

// Terms returns a copy of the base denylist.
func (g *Guard) Terms() []string {
	out := make([]string, len(g.terms))
	copy(out, g.terms)
	return out
}

// Check scans text for denylisted terms. extra terms are added for this
// call only. Whitespace-only text is always clean.
func (g *Guard) Check(text string, extra ...string) Verdict {
	text = strings.TrimSpace(text)
	if text == "" {
		return Verdict{}
	}

	re := g.base
	if extraTerms := normalize(extra); len(extraTerms) > 0 {
		compiled, err := compileTerms(normalize(append(g.Terms(), extraTerms...)))
		if err != nil {
			return unscanned(err)
		}
		re = compiled
	}
	if re == nil {
		return Verdict{}
	}

	m, err := re.FindStringMatch(text)
	if err != nil {
		return unscanned(err)
	}
	if m == nil {
		return Verdict{}
	}
	return Verdict{
		Rejected: true,
		Term:     strings.ToLower(m.String()),
		Reason:   RejectionMessage,
	}
}

func unscanned(err error) Verdict {
	return Verdict{Rejected: true, Reason: RejectionMessage, Err: err}
}

// EnsureClean returns a *RejectedError when Check rejects text.
func (g *Guard) EnsureClean(text string, extra ...string) error {
	if v := g.Check(text, extra...); v.Rejected {
		return &RejectedError{Term: v.Term}
	}
	return nil
}

func normalize(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// compileTerms is swapped out by tests.
var compileTerms = compile

// compile builds one alternation, longest terms first so that a multi-word
// term wins over its prefix.
func compile(terms []string) (*regexp2.Regexp, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	sorted := make([]string, len(terms))
	copy(sorted, terms)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	escaped := make([]string, len(sorted))
	for i, t := range sorted {
		escaped[i] = regexp2.Escape(t)
	}
	pattern := `\b(?:` + strings.Join(escaped, "|") + `)\b`

	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("compile denylist: %w", err)
	}
	return re, nil
}
