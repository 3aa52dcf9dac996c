package dataset

import (
	"strconv"
	"strings"
)

// UniqueNames makes header names usable as record keys. Blank names become
// "Unnamed: <i>" and repeated names get ".1", ".2" suffixes in order of
// appearance, the way spreadsheet exports are usually read.
func UniqueNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	taken := make(map[string]bool, len(names))
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			n = "Unnamed: " + strconv.Itoa(i)
		}
		name := n
		for taken[name] {
			seen[n]++
			name = n + "." + strconv.Itoa(seen[n])
		}
		taken[name] = true
		out[i] = name
	}
	return out
}
