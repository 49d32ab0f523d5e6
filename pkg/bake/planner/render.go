// Copyright 2025 The Bake Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package planner

import (
	"fmt"
	"strings"
)

// Render produces a tree-style listing of plan, one indented level per
// wave, for a caller's verbose output.
func Render(plan Plan) string {
	if len(plan) == 0 {
		return ""
	}

	total := plan.Len()
	maxParallel := 0
	for _, wave := range plan {
		if len(wave) > maxParallel {
			maxParallel = len(wave)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Execution Plan\n")
	fmt.Fprintf(&b, "  total recipes: %d\n", total)
	fmt.Fprintf(&b, "  waves: %d\n", len(plan))
	fmt.Fprintf(&b, "  max parallel: %d\n\n", maxParallel)

	for level, wave := range plan {
		indent := strings.Repeat(" ", level*3)
		for i, fqn := range wave {
			connector := "├─ "
			if i == len(wave)-1 {
				connector = "└─ "
			}
			fmt.Fprintf(&b, "%s%s%s\n", indent, connector, fqn)
		}
	}
	return b.String()
}
