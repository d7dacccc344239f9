// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import (
	"strconv"
	"strings"
)

const (
	// Version is the client library version.
	Version = "0.5.dev2"
	// AnsysVersion is the product release the client targets.
	AnsysVersion = "222"
	// MinServerVersion is the oldest engine the client talks to.
	MinServerVersion = "2.0"
)

// ServerToAnsysVersion maps engine versions onto product releases.
var ServerToAnsysVersion = map[string]string{
	"1.0": "2021R1",
	"2.0": "2021R2",
	"3.0": "2022R1",
	"4.0": "2022R2",
}

// CompareVersions compares dotted numeric versions. It returns -1, 0 or 1.
// Missing components count as zero and non-numeric components as zero.
func CompareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := range max(len(pa), len(pb)) {
		x, y := versionPart(pa, i), versionPart(pb, i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func versionPart(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil {
		return 0
	}
	return n
}
