package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"answergen/internal/models"
)

func TestBuildPromptIsDeterministic(t *testing.T) {
	in := PromptInput{Subject: "History", Mode: models.ModeUnderstand, CustomPrompt: "Mention dates"}
	q := models.Question{Index: 0, Text: "What caused the French Revolution?"}

	a := BuildPrompt(in, q)
	assert.Equal(t, a, BuildPrompt(in, q))

	assert.Contains(t, a, "specializing in History")
	assert.Contains(t, a, "UNDERSTAND MODE")
	assert.NotContains(t, a, "EXAM MODE")
	assert.Contains(t, a, "SUBJECT-SPECIFIC GUIDELINES FOR HISTORY")
	assert.Contains(t, a, "ADDITIONAL INSTRUCTIONS:\nMention dates")
	assert.NotContains(t, a, "REFERENCE MATERIAL")
	assert.NotContains(t, a, "fenced code block")
	assert.True(t, strings.Index(a, "QUESTION TO ANSWER:\nWhat caused") > strings.Index(a, "ADDITIONAL INSTRUCTIONS"))
}

func TestBuildPromptModesAndSubjects(t *testing.T) {
	q := models.Question{Text: "Explain binary search."}

	cs := BuildPrompt(PromptInput{Subject: "Computer Science", Mode: models.ModeExam}, q)
	assert.Contains(t, cs, "EXAM MODE")
	assert.Contains(t, cs, "Explain time and space complexity")
	assert.Contains(t, cs, "fenced code block")

	other := BuildPrompt(PromptInput{Subject: "Astronomy", Mode: models.ModeExam}, q)
	assert.Contains(t, other, "GENERAL ACADEMIC GUIDELINES")
}

func TestBuildPromptTruncatesReference(t *testing.T) {
	ref := strings.Repeat("é", 1000) // 2000 bytes
	p := BuildPrompt(PromptInput{Subject: "Physics", Mode: models.ModeExam, Reference: ref}, models.Question{Text: "q"})

	start := strings.Index(p, "when relevant:\n") + len("when relevant:\n")
	end := strings.Index(p[start:], "...")
	assert.LessOrEqual(t, end, maxReferenceInPrompt)
	assert.Equal(t, strings.Repeat("é", 750), p[start:start+end])
}

func TestBatchPromptAndSplit(t *testing.T) {
	qs := []models.Question{{Index: 0, Text: "Define a set."}, {Index: 1, Text: "Define a map."}}
	p := BuildBatchPrompt(PromptInput{Subject: "Mathematics", Mode: models.ModeExam}, qs)
	assert.Contains(t, p, "1. Define a set.\n2. Define a map.")
	assert.Contains(t, p, "### ANSWER 1")
	assert.Contains(t, p, "### ANSWER 2")

	parts, ok := splitBatchReply("### ANSWER 1\nA set is...\n- item\n### ANSWER 2:\nA map is...", 2)
	assert.True(t, ok)
	assert.Equal(t, []string{"A set is...\n- item", "A map is..."}, parts)

	_, ok = splitBatchReply("### ANSWER 1\nonly one", 2)
	assert.False(t, ok)
	_, ok = splitBatchReply("### ANSWER 2\nwrong order\n### ANSWER 1\nx", 2)
	assert.False(t, ok)
	_, ok = splitBatchReply("### ANSWER 1\n\n### ANSWER 2\nx", 2)
	assert.False(t, ok)
}
