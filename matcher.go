/*
Copyright 2025 Shilingi Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package shilingi

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/shilingihq/shilingi/config"
	"github.com/shilingihq/shilingi/model"
)

// MatchParams are the tunable constants of the suggestion scorer. The
// defaults sum the component ceilings to 100, so a same-day exact-amount
// candidate whose reference appears in the statement line scores the
// maximum.
type MatchParams struct {
	MaxSuggestions     int
	AmountWeight       float64
	DateWeight         float64
	ReferenceWeight    float64
	NameWeight         float64
	AmountTolerance    float64
	MaxAmountDeviation float64
	DateWindowDays     int
	DateDecayPerDay    float64
}

// DefaultMatchParams returns the stock scorer constants.
func DefaultMatchParams() MatchParams {
	return MatchParams{
		MaxSuggestions:     10,
		AmountWeight:       40,
		DateWeight:         30,
		ReferenceWeight:    30,
		NameWeight:         20,
		AmountTolerance:    0.01,
		MaxAmountDeviation: 0.10,
		DateWindowDays:     14,
		DateDecayPerDay:    2,
	}
}

// MatchParamsFromConfig maps the matcher section of the configuration onto
// scorer parameters.
func MatchParamsFromConfig(mc config.MatcherConfig) MatchParams {
	return MatchParams{
		MaxSuggestions:     mc.MaxSuggestions,
		AmountWeight:       mc.AmountWeight,
		DateWeight:         mc.DateWeight,
		ReferenceWeight:    mc.ReferenceWeight,
		NameWeight:         mc.NameWeight,
		AmountTolerance:    mc.AmountTolerance,
		MaxAmountDeviation: mc.MaxAmountDeviation,
		DateWindowDays:     mc.DateWindowDays,
		DateDecayPerDay:    mc.DateDecayPerDay,
	}
}

// SuggestMatches scores candidates against a bank transaction and returns
// the best of them, sorted by descending score. It is a pure function:
// deterministic for the same inputs, mutating neither the transaction nor
// the candidates, so repeated calls are idempotent and safe to cache.
//
// Debits score only against expenses and credits only against invoices.
// Candidates from another organization are skipped outright, as a second
// line of defense behind the org-filtered candidate queries.
func SuggestMatches(txn *model.BankTransaction, candidates []model.Candidate, params MatchParams) []model.ScoredCandidate {
	wantKind := model.KindExpense
	if txn.Direction() == model.DirectionCredit {
		wantKind = model.KindInvoice
	}
	txnAmount := txn.Amount()

	scored := make([]model.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.OrgID != txn.OrgID || c.Kind != wantKind {
			continue
		}
		if c.Amount.Sign() <= 0 {
			continue
		}

		var score float64
		var reasons []string

		amountScore, reason, disqualified := scoreAmount(txnAmount, c.Amount, params)
		if disqualified {
			continue
		}
		score += amountScore
		if reason != "" {
			reasons = append(reasons, reason)
		}

		dateScore, reason := scoreDate(txn, &c, params)
		score += dateScore
		if reason != "" {
			reasons = append(reasons, reason)
		}

		textScore, reason := scoreText(txn, &c, params)
		score += textScore
		if reason != "" {
			reasons = append(reasons, reason)
		}

		score = math.Min(math.Max(score, 0), 100)
		if score <= 0 {
			continue
		}
		scored = append(scored, model.ScoredCandidate{Candidate: c, Score: score, Reasons: reasons})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		di := dayDistance(txn.Date, scored[i].Date)
		dj := dayDistance(txn.Date, scored[j].Date)
		if di != dj {
			return di < dj
		}
		return scored[i].Seq < scored[j].Seq
	})

	if params.MaxSuggestions > 0 && len(scored) > params.MaxSuggestions {
		scored = scored[:params.MaxSuggestions]
	}
	return scored
}

// scoreAmount compares the transaction amount with the candidate amount.
// An exact match earns the full weight; within the tolerance band the score
// decays linearly; past the max deviation the candidate is disqualified.
// Between tolerance and max deviation the component contributes nothing but
// the candidate stays in play for date and text signals.
func scoreAmount(txnAmount, candAmount decimal.Decimal, params MatchParams) (float64, string, bool) {
	diff := txnAmount.Sub(candAmount).Abs()
	if diff.IsZero() {
		return params.AmountWeight, "exact amount match", false
	}

	ratio, _ := diff.Div(candAmount).Float64()
	if ratio > params.MaxAmountDeviation {
		return 0, "", true
	}
	if ratio <= params.AmountTolerance {
		return params.AmountWeight * (1 - ratio/params.AmountTolerance), "amount within tolerance", false
	}
	return 0, "", false
}

// scoreDate rewards date proximity. Outside the window the component is
// zero but does not disqualify: payments legitimately clear late.
func scoreDate(txn *model.BankTransaction, c *model.Candidate, params MatchParams) (float64, string) {
	days := dayDistance(txn.Date, c.Date)
	if days == 0 {
		return params.DateWeight, "same-day match"
	}
	if days > params.DateWindowDays {
		return 0, ""
	}
	score := params.DateWeight - params.DateDecayPerDay*float64(days)
	if score <= 0 {
		return 0, ""
	}
	return score, fmt.Sprintf("within %d days", days)
}

// scoreText looks for the candidate's reference verbatim in the statement
// line first; that is the strongest text signal and short-circuits the
// name comparison. Otherwise it scores token overlap between the statement
// description and the vendor/contact name.
func scoreText(txn *model.BankTransaction, c *model.Candidate, params MatchParams) (float64, string) {
	if ref := strings.TrimSpace(c.Reference); ref != "" {
		if containsFold(txn.Description, ref) || containsFold(txn.Reference, ref) {
			return params.ReferenceWeight, "reference number match"
		}
	}

	frac := tokenOverlap(txn.Description, c.Name)
	if frac <= 0 {
		return 0, ""
	}
	reason := "vendor name match"
	if c.Kind == model.KindInvoice {
		reason = "contact name match"
	}
	return params.NameWeight * frac, reason
}

// tokenOverlap returns the fraction of name tokens found in the
// description, using a levenshtein-backed comparison so minor statement
// mangling ("SAVANAH" for "Savannah") still counts.
func tokenOverlap(description, name string) float64 {
	nameTokens := strings.Fields(strings.ToLower(name))
	if len(nameTokens) == 0 {
		return 0
	}
	descTokens := strings.Fields(strings.ToLower(description))

	matched := 0
	for _, nt := range nameTokens {
		for _, dt := range descTokens {
			if fuzzyTokenMatch(nt, dt) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(nameTokens))
}

// fuzzyTokenMatch compares two tokens, allowing a levenshtein distance of
// up to 20% of the longer token. Very short tokens must match exactly.
func fuzzyTokenMatch(a, b string) bool {
	if a == b {
		return true
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen < 5 {
		return false
	}
	distance := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	return distance <= maxLen/5
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func dayDistance(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	au := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bu := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(au.Sub(bu).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
