// Package util provides small helpers shared by the backends, the mocks and
// the command line.
package util

import (
	"strings"
)

// SplitIDs parses a comma separated list of IDs. Blank entries and
// duplicates are dropped; the first occurrence keeps its position.
func SplitIDs(list string) []string {
	var ids []string
	for _, part := range strings.Split(list, ",") {
		id := strings.TrimSpace(part)
		if id == "" || ContainsString(ids, id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ContainsString checks if a string is in a slice of strings
func ContainsString(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}

// RemoveString removes every occurrence of s from a slice of strings
func RemoveString(slice []string, s string) []string {
	result := make([]string, 0, len(slice))
	for _, item := range slice {
		if item != s {
			result = append(result, item)
		}
	}
	return result
}

// MergeMaps merges two maps, with values from the second map taking precedence
func MergeMaps(m1, m2 map[string]string) map[string]string {
	result := make(map[string]string, len(m1)+len(m2))
	for k, v := range m1 {
		result[k] = v
	}
	for k, v := range m2 {
		result[k] = v
	}
	return result
}
