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
// Package recommend turns a request and its retrieved candidates into one
// grounded book recommendation. The model proposes a title through a tool
// call; the proposal is validated against the candidate list before the
// corpus is consulted, so a recommendation is never a title the retrieval
// step did not return.
package recommend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teradata-labs/lectern/pkg/retrieval"
)

// Errors returned by Recommend.
var (
	ErrEmptyQuery = errors.New("query is empty")
	ErrInvalidK   = retrieval.ErrInvalidK
)

// NoRecommendationMessage is the justification when nothing can be picked.
const NoRecommendationMessage = "No recommendation available."

// Kind tags how the recommended title was obtained.
type Kind string

// Grounding outcomes.
const (
	// KindGrounded: the model's title is one of the candidates.
	KindGrounded Kind = "grounded"
	// KindSubstituted: the model's title was not a candidate and the first
	// candidate was used instead.
	KindSubstituted Kind = "substituted"
	// KindUnvalidated: there were no candidates to check against.
	KindUnvalidated Kind = "unvalidated"
	// KindAbstained: the model's title was not a candidate and the policy
	// refused to substitute.
	KindAbstained Kind = "abstained"
	// KindFallback: the model made no usable tool call.
	KindFallback Kind = "fallback"
)

// Grounding records the validation of a proposed title.
type Grounding struct {
	Kind     Kind   `json:"kind"`
	Proposed string `json:"proposed,omitempty"`
	Title    string `json:"title"`
}

// Policy decides what happens to a title outside the candidate list.
type Policy string

// Mismatch policies.
const (
	PolicySubstitute Policy = "substitute"
	PolicyAbstain    Policy = "abstain"
)

// ParsePolicy reads a policy name. Empty selects PolicySubstitute.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicySubstitute:
		return PolicySubstitute, nil
	case PolicyAbstain:
		return PolicyAbstain, nil
	default:
		return "", fmt.Errorf("unknown mismatch policy %q (want substitute or abstain)", name)
	}
}

// Ground validates proposed against candidates. Only an exact member of
// candidates, after trimming, is grounded. An empty proposal is a mismatch.
func Ground(proposed string, candidates []string, policy Policy) Grounding {
	proposed = strings.TrimSpace(proposed)
	if len(candidates) == 0 {
		return Grounding{Kind: KindUnvalidated, Proposed: proposed, Title: proposed}
	}

	for _, c := range candidates {
		if c == proposed {
			return Grounding{Kind: KindGrounded, Proposed: proposed, Title: c}
		}
	}

	if policy == PolicyAbstain {
		return Grounding{Kind: KindAbstained, Proposed: proposed}
	}
	return Grounding{Kind: KindSubstituted, Proposed: proposed, Title: candidates[0]}
}

// Recommendation is the orchestrator's result. When CandidateTitles is
// non-empty, Title is empty or one of them.
type Recommendation struct {
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Justification   string    `json:"message"`
	CandidateTitles []string  `json:"candidates"`
	Grounding       Grounding `json:"grounding"`
}

// Empty reports that no book was recommended.
func (r *Recommendation) Empty() bool {
	return r == nil || r.Title == ""
}
