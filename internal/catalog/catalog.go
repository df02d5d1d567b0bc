// Package catalog holds the static, duration-keyed stage structures for
// ScriptPipe scripts.
//
// The tables are fixed domain content: each duration maps to an ordered list
// of stage definitions the workflow walks through one approval at a time.
package catalog

import (
	"fmt"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// StageDefinition describes one stage of the script structure: the title
// shown to the user and the instructional description sent to the provider.
type StageDefinition struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

var shortStages = []StageDefinition{
	{Title: "Block 1: Opening and Promise", Description: "Hook, problem identification and presentation of the solution (the mechanism)."},
	{Title: "Block 2: The Mechanism Doctrine", Description: "Explanation of the big idea, the unique mechanism and quick proof."},
	{Title: "Block 3: The Direct Offer", Description: "Product presentation, value stack and price."},
	{Title: "Block 4: The Close", Description: "Guarantee, final call to action and scarcity."},
}

var mediumStages = []StageDefinition{
	{Title: "Block 1: Connection and Empathy", Description: "Origin story, problem definition and emotional agitation."},
	{Title: "Block 2: The Hero's Journey", Description: "The low point, the search for a solution and the breaking point."},
	{Title: "Block 3: The Revelation", Description: "The eureka moment, the discovery of the mechanism and the transformation."},
	{Title: "Block 4: The Pitch", Description: "Transition to the sale, detailed offer and guarantee."},
}

var longStages = []StageDefinition{
	{Title: "Block 1: Opening and Contract", Description: "Strong hook, connection story and learning contract."},
	{Title: "Block 2: Deep Indoctrination", Description: "Educational content, the common enemy and breaking limiting beliefs."},
	{Title: "Block 3: The Bridge", Description: "Recap of what was learned and the dilemma of implementing alone."},
	{Title: "Block 4: The Full Pitch", Description: "Presentation of the definitive solution, bonuses, guarantee and price."},
	{Title: "Block 5: The Close", Description: "FAQ, real scarcity and the ultimatum."},
}

// StagesFor returns the ordered stage definitions for the given duration.
// The result is a fresh copy; callers may not mutate the catalog tables.
// An unrecognized duration is a programming error and panics.
func StagesFor(d models.Duration) []StageDefinition {
	var src []StageDefinition
	switch d {
	case models.DurationShort:
		src = shortStages
	case models.DurationMedium:
		src = mediumStages
	case models.DurationLong:
		src = longStages
	default:
		panic(fmt.Sprintf("catalog: unknown duration %q", d))
	}
	out := make([]StageDefinition, len(src))
	copy(out, src)
	return out
}
