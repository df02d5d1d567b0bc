// Package flow implements the ScriptPipe workflow orchestrator.
//
// This file assembles the instruction template and prompt text sent to the
// generation provider. The wording is domain content; the workflow treats
// the assembled strings as opaque.
package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/ScriptPipe/internal/catalog"
	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// SystemInstruction is the persona and style contract sent with every
// provider call.
const SystemInstruction = `You are a world-class senior direct-response copywriter.
Your task is to write VSL (Video Sales Letter) scripts.
Adopt the persona of the configured expert.
IMPORTANT: follow the "TELEPROMPTER" style:
1. Write ONLY the spoken text plus visual directions in [BRACKETS].
2. Do NOT include headings, explanations or metadata.
3. Use Markdown formatting.`

// styleInstructions are the teleprompter formatting rules appended to the
// lead prompt.
const styleInstructions = `STYLE DIRECTIVES (TELEPROMPTER MODE):
- The text must be ready to read from a teleprompter.
- Use ONLY [VISUAL DIRECTION] in brackets to guide editing.
- Do NOT add headings like "Introduction", "Block 1", "Part 2".
- Do NOT explain what you are doing. Just write the script.
- Use double spacing between paragraphs for readability.
- Spoken, simple, direct language.`

// leadCandidateCount is how many opening options the batch call requests.
const leadCandidateCount = 3

// leadPrompt builds the batch prompt for candidate lead generation. The
// first stage definition's description gives the tonal focus.
func leadPrompt(cfg models.ScriptConfig, firstStageDesc string) string {
	product := cfg.Product
	if product == "" {
		product = "Not specified (focus on the campaign promise)"
	}
	observations := cfg.Observations
	if observations == "" {
		observations = "None"
	}
	goal := string(cfg.Goal)
	if cfg.Goal == models.GoalOther && cfg.GoalOther != "" {
		goal = fmt.Sprintf("%s (%s)", cfg.Goal, cfg.GoalOther)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create %d opening (lead) options for this VSL.\n\n", leadCandidateCount)
	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "Expert: %s\n", cfg.Expert)
	fmt.Fprintf(&b, "Audience: %s\n", cfg.Audience)
	fmt.Fprintf(&b, "Campaign: %s\n", cfg.Campaign)
	fmt.Fprintf(&b, "Duration: %s\n", cfg.Duration)
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	fmt.Fprintf(&b, "Product: %s\n", product)
	fmt.Fprintf(&b, "Observations: %s\n\n", observations)
	fmt.Fprintf(&b, "Focus of this opening stage: %s\n\n", firstStageDesc)
	b.WriteString(styleInstructions)
	b.WriteString("\n\nOUTPUT: JSON array with ")
	fmt.Fprintf(&b, "%d objects {id, title, content}.", leadCandidateCount)
	return b.String()
}

// stagePrompt builds the streaming prompt for one script stage. previousContext
// is the blank-line-joined content of every prior stage; feedback is empty for
// fresh generation and non-empty for a refinement pass.
func stagePrompt(cfg models.ScriptConfig, def catalog.StageDefinition, previousContext, feedback string) string {
	product := cfg.Product
	if product == "" {
		product = "Not specified"
	}
	contentInput := cfg.ContentInput
	if contentInput == "" {
		contentInput = "N/A"
	}
	observations := cfg.Observations
	if observations == "" {
		observations = "None"
	}

	task := fmt.Sprintf("Write the continuation of the script.\nCURRENT PART: %q\nGOAL OF THIS PART: %s", def.Title, def.Description)
	if feedback != "" {
		task = fmt.Sprintf("REDO the current part (%q) following this USER FEEDBACK:\n%q\n\nKeep the prior context, but change this part as requested.", def.Title, feedback)
	}

	var b strings.Builder
	b.WriteString("SETTINGS:\n")
	fmt.Fprintf(&b, "Expert: %s\n", cfg.Expert)
	fmt.Fprintf(&b, "Audience: %s\n", cfg.Audience)
	fmt.Fprintf(&b, "Format: %s\n", cfg.Format)
	fmt.Fprintf(&b, "Product: %s\n", product)
	fmt.Fprintf(&b, "Extra content: %s\n", contentInput)
	fmt.Fprintf(&b, "Observations: %s\n\n", observations)
	b.WriteString("APPROVED CONTEXT (what comes before):\n\"\"\"\n")
	b.WriteString(previousContext)
	b.WriteString("\n\"\"\"\n\n")
	b.WriteString("YOUR TASK NOW:\n")
	b.WriteString(task)
	b.WriteString("\n\nVISUAL STRUCTURE (strict):\n")
	b.WriteString("- Clean teleprompter format.\n")
	b.WriteString("- Only spoken text and [VISUAL DIRECTIONS].\n")
	b.WriteString("- No introductions like \"Here is part 2\". Start directly in the text.")
	return b.String()
}
