package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivetechs/consensus/pkg/llm"
)

func TestBuildMessages_Generator(t *testing.T) {
	msgs := BuildMessages(StageGenerator, Request{
		Query:           "How does the scheduler pick workers?",
		Context:         "Repository Path: /src/sched",
		TemporalContext: "Today is 19 October 2026",
	}, "ignored")

	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Generator")
	assert.Contains(t, msgs[1].Content, "19 October 2026")
	assert.Contains(t, msgs[2].Content, "/src/sched")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "How does the scheduler pick workers?"}, msgs[3])
	for _, m := range msgs {
		assert.NotContains(t, m.Content, "ignored")
	}
}

func TestBuildMessages_LaterStages(t *testing.T) {
	req := Request{Query: "What is 2+2?"}
	for _, stage := range []Stage{StageRefiner, StageValidator, StageCurator} {
		t.Run(string(stage), func(t *testing.T) {
			msgs := BuildMessages(stage, req, "four")
			require.Len(t, msgs, 2)
			assert.Equal(t, systemPrompts[stage], msgs[0].Content)
			assert.Equal(t, llm.RoleUser, msgs[1].Role)
			assert.Contains(t, msgs[1].Content, "What is 2+2?")
			assert.Contains(t, msgs[1].Content, "four")
		})
	}
}

func TestBuildMessages_ContextReachesEveryStage(t *testing.T) {
	req := Request{
		Query:           "Where is the retry budget configured?",
		Context:         "Repository Path: /src/gateway",
		TemporalContext: "Today is 19 October 2026",
	}
	for _, stage := range Stages {
		t.Run(string(stage), func(t *testing.T) {
			msgs := BuildMessages(stage, req, "draft")
			require.Len(t, msgs, 4)

			var system []string
			for _, m := range msgs[:3] {
				assert.Equal(t, llm.RoleSystem, m.Role)
				system = append(system, m.Content)
			}
			assert.Contains(t, system[1], "19 October 2026")
			assert.Contains(t, system[2], "/src/gateway")
			assert.Equal(t, llm.RoleUser, msgs[3].Role)
			assert.Contains(t, msgs[3].Content, req.Query)
		})
	}
}

func TestAnswerScope(t *testing.T) {
	assert.Contains(t, answerScope("What is Go?"), "short")
	assert.Contains(t, answerScope("Compare the two caching strategies used in this service"), "well-structured")
	assert.Contains(t, answerScope("Walk me through how the retry logic, the circuit breaker and the rate limiter interact when the upstream gateway starts failing"), "in-depth")
}
