package main

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// tfidfIndex ranks historical stories by lexical similarity so the
// estimation prompt can carry a few already-priced stories as
// calibration examples.
type sparseVec = map[int]float64

type tfidfIndex struct {
	vocab map[string]int
	idf   []float64
	docs  []sparseVec
	items []HistoricalStory
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func buildTFIDFIndex(items []HistoricalStory) *tfidfIndex {
	if len(items) == 0 {
		return &tfidfIndex{vocab: make(map[string]int)}
	}

	vocab := make(map[string]int)
	for _, item := range items {
		for _, tok := range tokenize(item.Text) {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}

	df := make([]int, len(vocab))
	docs := make([]sparseVec, len(items))
	n := float64(len(items))

	for i, item := range items {
		tf := make(map[int]int)
		for _, tok := range tokenize(item.Text) {
			if idx, ok := vocab[tok]; ok {
				tf[idx]++
			}
		}
		vec := make(sparseVec, len(tf))
		for idx, count := range tf {
			vec[idx] = float64(count)
			df[idx]++
		}
		docs[i] = vec
	}

	idf := make([]float64, len(vocab))
	for i, d := range df {
		if d > 0 {
			idf[i] = math.Log(n/float64(d)) + 1.0
		}
	}

	for _, vec := range docs {
		for idx := range vec {
			vec[idx] *= idf[idx]
		}
	}

	return &tfidfIndex{
		vocab: vocab,
		idf:   idf,
		docs:  docs,
		items: items,
	}
}

func (idx *tfidfIndex) queryVec(query string) sparseVec {
	tf := make(map[int]int)
	for _, tok := range tokenize(query) {
		if i, ok := idx.vocab[tok]; ok {
			tf[i]++
		}
	}
	vec := make(sparseVec, len(tf))
	for i, count := range tf {
		vec[i] = float64(count) * idx.idf[i]
	}
	return vec
}

// topK returns the K historical stories most similar to the query.
func (idx *tfidfIndex) topK(query string, k int) []HistoricalStory {
	if len(idx.items) == 0 || k <= 0 {
		return nil
	}
	qvec := idx.queryVec(query)
	if len(qvec) == 0 {
		return nil
	}

	type scored struct {
		index int
		score float64
	}
	var results []scored
	for i, dvec := range idx.docs {
		sim := cosineSim(qvec, dvec)
		if sim > 0 {
			results = append(results, scored{i, sim})
		}
	}
	sort.Slice(results, func(a, b int) bool {
		return results[a].score > results[b].score
	})
	if len(results) > k {
		results = results[:k]
	}
	out := make([]HistoricalStory, len(results))
	for i, r := range results {
		out[i] = idx.items[r.index]
	}
	return out
}

func cosineSim(a, b sparseVec) float64 {
	var dotProd, normA, normB float64
	for i, va := range a {
		if vb, ok := b[i]; ok {
			dotProd += va * vb
		}
		normA += va * va
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProd / (math.Sqrt(normA) * math.Sqrt(normB))
}
