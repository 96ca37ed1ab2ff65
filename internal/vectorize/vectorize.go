// Package vectorize turns texts into TF-IDF feature vectors over a bounded
// vocabulary fitted per call.
package vectorize

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxFeatures bounds the vocabulary when the caller passes zero.
const DefaultMaxFeatures = 1000

// ErrEmptyVocabulary is returned when the texts contain no usable terms.
var ErrEmptyVocabulary = errors.New("empty vocabulary; documents contain only stop words or no words")

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Vocabulary is a fitted term index. It is immutable after Fit and may be
// shared by concurrent Transform calls.
type Vocabulary struct {
	terms []string
	index map[string]int
	idf   []float64
}

// Tokenize lowercases text and returns its non-stop-word tokens.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Fit builds a vocabulary of at most maxFeatures terms from texts. Terms are
// chosen by corpus frequency, ties broken lexicographically, and columns are
// ordered alphabetically.
func Fit(texts []string, maxFeatures int) (*Vocabulary, error) {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	tf := make(map[string]int)
	df := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(text) {
			tf[tok]++
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				df[tok]++
			}
		}
	}
	if len(tf) == 0 {
		return nil, ErrEmptyVocabulary
	}

	terms := make([]string, 0, len(tf))
	for term := range tf {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if tf[terms[i]] != tf[terms[j]] {
			return tf[terms[i]] > tf[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxFeatures {
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	v := &Vocabulary{
		terms: terms,
		index: make(map[string]int, len(terms)),
		idf:   make([]float64, len(terms)),
	}
	n := float64(len(texts))
	for i, term := range terms {
		v.index[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return v, nil
}

// Len returns the vector width.
func (v *Vocabulary) Len() int { return len(v.terms) }

// Terms returns the column labels in order.
func (v *Vocabulary) Terms() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// Transform returns one L2-normalised row per text. Terms outside the
// vocabulary contribute nothing; a text with none of its terms is a zero row.
func (v *Vocabulary) Transform(texts []string) [][]float64 {
	rows := make([][]float64, len(texts))
	for i, text := range texts {
		row := make([]float64, len(v.terms))
		for _, tok := range Tokenize(text) {
			if col, ok := v.index[tok]; ok {
				row[col]++
			}
		}
		var norm float64
		for col := range row {
			row[col] *= v.idf[col]
			norm += row[col] * row[col]
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for col := range row {
				row[col] /= norm
			}
		}
		rows[i] = row
	}
	return rows
}

// Vectorize fits a fresh vocabulary on texts and transforms them.
func Vectorize(texts []string, maxFeatures int) ([][]float64, *Vocabulary, error) {
	v, err := Fit(texts, maxFeatures)
	if err != nil {
		return nil, nil, err
	}
	return v.Transform(texts), v, nil
}
