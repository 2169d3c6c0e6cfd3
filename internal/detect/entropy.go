// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package detect implements the agent-side detection primitives:
// small, independently testable functions that turn raw process,
// network, and filesystem observations into ThreatIndicators. Each
// primitive is pure and stateless except where the contract itself
// requires running statistics (beaconing).
package detect

import (
	"math"
	"strings"
)

// ShannonEntropy returns the Shannon entropy (bits per character) of s
// over its character distribution. Returns 0.0 for empty input.
func ShannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0.0
	}
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	n := float64(len(s))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// DGAEntropyThreshold is the floor above which a domain label is
// considered linguistically unusual enough to warrant DGA heuristics.
const DGAEntropyThreshold = 3.5

var vowels = "aeiouAEIOU"

// consonantRunLength returns the length of the longest run of
// consecutive consonant letters in s.
func consonantRunLength(s string) int {
	best, cur := 0, 0
	for _, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isVowel := strings.ContainsRune(vowels, r)
		if isLetter && !isVowel {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
	}
	return best
}

func digitRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return float64(digits) / float64(len(s))
}

// DGAScore estimates how likely label (a single DNS label, without
// dots) is algorithmically generated. It combines Shannon entropy with
// consonant-run-length, digit-ratio, and length heuristics, each of
// which can only raise the score, capped at 1.0.
func DGAScore(label string) float64 {
	if label == "" {
		return 0.0
	}
	entropy := ShannonEntropy(label)
	if entropy <= DGAEntropyThreshold {
		return 0.0
	}
	// Base score scales with how far entropy exceeds the threshold,
	// normalized against a practical ceiling of ~4.5 bits/char for
	// lowercase-alnum label text.
	score := (entropy - DGAEntropyThreshold) / (4.5 - DGAEntropyThreshold)

	if run := consonantRunLength(label); run >= 4 {
		score += 0.15
	}
	if dr := digitRatio(label); dr > 0.3 {
		score += 0.15
	}
	if len(label) >= 16 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}
