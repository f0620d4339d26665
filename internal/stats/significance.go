package stats

import (
	"math"

	"github.com/headline-goat/splitgoat/internal/experiment"
)

// ConfidenceThreshold is the level at which a leader is called a winner.
const ConfidenceThreshold = 0.95

// Analysis summarises an experiment's results for display.
type Analysis struct {
	Variants        []VariantAnalysis  `json:"variants"`
	Confident       bool               `json:"confident"`
	ConfidenceLevel float64            `json:"confidence_level"`
	Leading         experiment.Variant `json:"leading_variant,omitempty"`
}

// VariantAnalysis is one row of an Analysis. Rate and the interval bounds
// are proportions in [0, 1].
type VariantAnalysis struct {
	Variant     experiment.Variant `json:"variant"`
	Users       int                `json:"users"`
	Conversions int                `json:"conversions"`
	Rate        float64            `json:"rate"`
	CILower     float64            `json:"ci_lower"`
	CIUpper     float64            `json:"ci_upper"`
	TotalValue  float64            `json:"total_value"`
}

// SignificanceTest performs a two-proportion z-test and returns the
// confidence (0-1) that A converts better than B.
func SignificanceTest(aConv, aUsers, bConv, bUsers int) float64 {
	if aUsers == 0 || bUsers == 0 {
		return 0.5
	}

	pA := float64(aConv) / float64(aUsers)
	pB := float64(bConv) / float64(bUsers)
	pooled := float64(aConv+bConv) / float64(aUsers+bUsers)

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(aUsers) + 1/float64(bUsers)))
	if se == 0 {
		switch {
		case pA > pB:
			return 1.0
		case pA < pB:
			return 0.0
		}
		return 0.5
	}

	return normalCDF((pA - pB) / se)
}

// normalCDF uses Abramowitz and Stegun formula 7.1.26.
func normalCDF(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}

// Analyze orders the result rows by the experiment's declared variants
// (falling back to canonical order), computes Wilson intervals, and tests
// the leader against control.
func Analyze(res experiment.Results) *Analysis {
	order := experiment.AllVariants()
	if res.Experiment != nil && len(res.Experiment.Variants) > 0 {
		order = res.Experiment.Variants
	}

	a := &Analysis{}
	seen := make(map[experiment.Variant]bool)
	for _, v := range order {
		if seen[v] {
			continue
		}
		seen[v] = true

		st, ok := res.Variants[v]
		if !ok && res.Experiment == nil {
			continue
		}
		a.Variants = append(a.Variants, analyzeVariant(v, st))
	}
	// Assigned variants the experiment no longer declares
	for _, v := range experiment.AllVariants() {
		if st, ok := res.Variants[v]; ok && !seen[v] {
			a.Variants = append(a.Variants, analyzeVariant(v, st))
		}
	}

	if len(a.Variants) == 0 {
		return a
	}

	leader := 0
	for i, v := range a.Variants {
		if v.Rate > a.Variants[leader].Rate {
			leader = i
		}
	}
	a.Leading = a.Variants[leader].Variant

	control := -1
	for i, v := range a.Variants {
		if v.Variant == experiment.Control {
			control = i
			break
		}
	}
	if control < 0 || len(a.Variants) < 2 {
		return a
	}

	if leader == control {
		challenger := -1
		for i, v := range a.Variants {
			if i == control {
				continue
			}
			if challenger < 0 || v.Rate > a.Variants[challenger].Rate {
				challenger = i
			}
		}
		a.ConfidenceLevel = SignificanceTest(
			a.Variants[control].Conversions, a.Variants[control].Users,
			a.Variants[challenger].Conversions, a.Variants[challenger].Users,
		)
	} else {
		a.ConfidenceLevel = SignificanceTest(
			a.Variants[leader].Conversions, a.Variants[leader].Users,
			a.Variants[control].Conversions, a.Variants[control].Users,
		)
	}
	a.Confident = a.ConfidenceLevel >= ConfidenceThreshold

	return a
}

func analyzeVariant(v experiment.Variant, st experiment.VariantStats) VariantAnalysis {
	lower, upper := WilsonInterval(st.Conversions, st.Users, ConfidenceThreshold)
	rate := 0.0
	if st.Users > 0 {
		rate = float64(st.Conversions) / float64(st.Users)
	}
	return VariantAnalysis{
		Variant:     v,
		Users:       st.Users,
		Conversions: st.Conversions,
		Rate:        rate,
		CILower:     lower,
		CIUpper:     upper,
		TotalValue:  st.TotalValue,
	}
}
