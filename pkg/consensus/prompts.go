package consensus

import (
	"fmt"
	"strings"

	"github.com/hivetechs/consensus/pkg/llm"
)

var systemPrompts = map[Stage]string{
	StageGenerator: "You are the Generator in a four-stage consensus pipeline. " +
		"Write a complete, accurate first answer to the user's question. " +
		"Later stages will refine, validate and polish your answer, so favour substance over formatting.",
	StageRefiner: "You are the Refiner in a four-stage consensus pipeline. " +
		"You receive the user's question and a draft answer. Improve the draft: fill gaps, " +
		"fix unclear reasoning and tighten the structure. Return the full improved answer, not a critique.",
	StageValidator: "You are the Validator in a four-stage consensus pipeline. " +
		"You receive the user's question and a refined answer. Check every claim, code sample and step " +
		"for correctness. Correct anything wrong and return the full corrected answer.",
	StageCurator: "You are the Curator, the final stage of a four-stage consensus pipeline. " +
		"You receive the user's question and a validated answer. Produce the final response the user " +
		"will read: clear, well organised and faithful to the validated content. Do not mention the pipeline.",
}

// answerScope adjusts the Generator's verbosity to the question.
func answerScope(query string) string {
	words := len(strings.Fields(query))
	lower := strings.ToLower(query)
	switch {
	case words <= 5 || strings.HasPrefix(lower, "what is") || strings.HasPrefix(lower, "how to"):
		return "Keep the answer short and direct."
	case words <= 15:
		return "Give a clear, well-structured answer."
	default:
		return "Give an in-depth answer that considers alternatives and trade-offs."
	}
}

// BuildMessages returns the chat messages for stage. previous is the output
// of the preceding stage and is ignored for the Generator. Every stage sees
// the supplied repository and temporal context.
func BuildMessages(stage Stage, req Request, previous string) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompts[stage]}}
	if stage == StageGenerator {
		msgs[0].Content += "\n\n" + answerScope(req.Query)
	}
	msgs = append(msgs, contextMessages(stage, req)...)

	if stage == StageGenerator {
		return append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Query})
	}
	return append(msgs, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Question:\n%s\n\n%s answer:\n%s", req.Query, previousLabel(stage), previous),
	})
}

func contextMessages(stage Stage, req Request) []llm.Message {
	var msgs []llm.Message
	if req.TemporalContext != "" {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Temporal context:\n" + req.TemporalContext,
		})
	}
	if req.Context != "" {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleSystem,
			Content: contextInstruction[stage] + "\n" + req.Context,
		})
	}
	return msgs
}

var contextInstruction = map[Stage]string{
	StageGenerator: "Repository context. Base your answer on it and cite real names from it " +
		"rather than generic examples:",
	StageRefiner: "Repository context. Keep the improved answer consistent with it " +
		"and replace generic examples with real names from it:",
	StageValidator: "Repository context. Check the answer's claims against it:",
	StageCurator:   "Repository context. The final answer must stay faithful to it:",
}

func previousLabel(stage Stage) string {
	switch stage {
	case StageRefiner:
		return "Draft"
	case StageValidator:
		return "Refined"
	default:
		return "Validated"
	}
}
