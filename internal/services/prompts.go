package services

import (
	"fmt"
	"strings"

	"answergen/internal/models"
)

const maxReferenceInPrompt = 1500

const baseInstruction = `You are an expert academic assistant specializing in %s.
Generate a comprehensive answer for the following college-level question worth 8 marks.

The answer should be:
- Well-structured with clear headings and subheadings
- Include key terms in **bold** and important concepts in *italics*
- Use bullet points and numbered lists where appropriate
- Maintain academic rigor and accuracy
- Be approximately 400-600 words for an 8-mark question`

const understandInstruction = `ANSWER GENERATION MODE: UNDERSTAND MODE
- Provide detailed explanations with analogies and real-world examples
- Use simpler language where appropriate for foundational understanding
- Include step-by-step breakdowns of complex concepts
- Add background context and theoretical foundations
- Use illustrative examples to clarify difficult points
- Focus on building comprehensive understanding`

const examInstruction = `ANSWER GENERATION MODE: EXAM MODE
- Provide concise, highly focused answers with direct key points
- Use formal academic language appropriate for examinations
- Minimize verbose examples or extensive background explanations
- Structure answers for maximum marks in minimum words
- Include only the most relevant information for exam success
- Format for quick review and memorization`

const codeFormatting = `- Put every code sample in a fenced code block with the language name, for example ` + "```python" + `
- Keep code lines under 80 characters`

var subjectGuidelines = map[string][]string{
	"Mathematics": {
		"Include step-by-step mathematical derivations",
		"Show all calculation steps clearly",
		"Use proper mathematical notation and symbols",
		"Include diagrams or geometric explanations where relevant",
		"Provide alternative solution methods when applicable",
		"Verify answers with examples or proofs",
	},
	"Physics": {
		"Include relevant physical laws and principles",
		"Show mathematical derivations and unit analysis",
		"Explain physical intuition behind concepts",
		"Include real-world applications and examples",
		"Draw diagrams for physical systems when helpful",
		"Connect theory to experimental observations",
	},
	"Computer Science": {
		"Include code examples and algorithms where relevant",
		"Explain time and space complexity",
		"Provide practical implementation details",
		"Include system design considerations",
		"Explain both theoretical and practical aspects",
		"Use proper technical terminology",
	},
	"History": {
		"Provide chronological context and timelines",
		"Include specific dates, names, and locations",
		"Explain cause-and-effect relationships",
		"Consider multiple perspectives and interpretations",
		"Include primary source references when relevant",
		"Connect events to broader historical patterns",
	},
	"Literature": {
		"Include textual evidence and quotations",
		"Analyze literary devices and techniques",
		"Consider historical and cultural context",
		"Discuss themes, characters, and symbolism",
		"Include critical perspectives and interpretations",
		"Connect to broader literary movements",
	},
	"Chemistry": {
		"Include chemical equations and reactions",
		"Explain molecular structures and bonding",
		"Provide step-by-step reaction mechanisms",
		"Include experimental procedures and observations",
		"Discuss practical applications and real-world relevance",
		"Use proper chemical nomenclature",
	},
	"Biology": {
		"Include biological processes and mechanisms",
		"Explain structure-function relationships",
		"Provide examples from different organisms",
		"Include evolutionary and ecological perspectives",
		"Discuss experimental evidence and methods",
		"Connect molecular to organismal levels",
	},
	"Economics": {
		"Include economic models and graphs",
		"Explain market mechanisms and behaviors",
		"Provide real-world economic examples",
		"Discuss policy implications",
		"Include quantitative analysis where relevant",
		"Consider multiple economic perspectives",
	},
	"Psychology": {
		"Include psychological theories and research",
		"Explain cognitive and behavioral processes",
		"Provide experimental evidence and studies",
		"Discuss practical applications",
		"Consider individual and cultural differences",
		"Include ethical considerations",
	},
	"Engineering": {
		"Include technical specifications and calculations",
		"Explain design principles and constraints",
		"Provide practical implementation details",
		"Discuss safety and efficiency considerations",
		"Include system analysis and optimization",
		"Connect theory to real-world applications",
	},
}

var generalGuidelines = []string{
	"Maintain academic rigor and scholarly approach",
	"Include relevant theories and concepts",
	"Provide evidence-based explanations",
	"Consider practical applications",
	"Use appropriate academic terminology",
}

// PromptInput is everything a prompt depends on. The same input always yields the same prompt.
type PromptInput struct {
	Subject      string
	Mode         models.Mode
	CustomPrompt string
	Reference    string
}

func guidelinesFor(subject string) string {
	var b strings.Builder
	lines, ok := subjectGuidelines[subject]
	if ok {
		fmt.Fprintf(&b, "SUBJECT-SPECIFIC GUIDELINES FOR %s:\n", strings.ToUpper(subject))
	} else {
		lines = generalGuidelines
		b.WriteString("GENERAL ACADEMIC GUIDELINES:\n")
	}
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if models.IsProgrammingSubject(subject) {
		b.WriteString(codeFormatting)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (in PromptInput) preamble() string {
	sections := []string{fmt.Sprintf(baseInstruction, in.Subject)}

	if in.Mode == models.ModeExam {
		sections = append(sections, examInstruction)
	} else {
		sections = append(sections, understandInstruction)
	}
	sections = append(sections, guidelinesFor(in.Subject))

	if ref := strings.TrimSpace(in.Reference); ref != "" {
		if len(ref) > maxReferenceInPrompt {
			ref = truncateUTF8(ref, maxReferenceInPrompt) + "..."
		}
		sections = append(sections, "REFERENCE MATERIAL:\nUse the following college notes as additional context when relevant:\n"+ref)
	}
	if custom := strings.TrimSpace(in.CustomPrompt); custom != "" {
		sections = append(sections, "ADDITIONAL INSTRUCTIONS:\n"+custom)
	}
	return strings.Join(sections, "\n\n")
}

// BuildPrompt returns the prompt for a single question.
func BuildPrompt(in PromptInput, q models.Question) string {
	return in.preamble() + "\n\nQUESTION TO ANSWER:\n" + q.Text +
		"\n\nPlease provide a comprehensive, well-formatted answer following all the above guidelines."
}

const answerDelimiter = "### ANSWER "

// BuildBatchPrompt asks for several answers in one reply, each introduced by
// "### ANSWER n" so the reply can be split again.
func BuildBatchPrompt(in PromptInput, qs []models.Question) string {
	var b strings.Builder
	b.WriteString(in.preamble())
	fmt.Fprintf(&b, "\n\nQUESTIONS TO ANSWER (%d):\n", len(qs))
	for i, q := range qs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Text)
	}
	fmt.Fprintf(&b, "\nAnswer every question separately and completely. Start each answer on its own line with %q followed by the question number, for example:\n", answerDelimiter+"n")
	for i := range qs {
		fmt.Fprintf(&b, "%s%d\n<answer to question %d>\n", answerDelimiter, i+1, i+1)
	}
	b.WriteString("Do not write anything before the first delimiter.")
	return b.String()
}

// splitBatchReply cuts a batch reply at the "### ANSWER n" delimiters. It
// reports false unless exactly want non-empty answers numbered 1..want were found.
func splitBatchReply(reply string, want int) ([]string, bool) {
	lines := strings.Split(reply, "\n")
	var (
		answers []string
		current []string
		next    = 1
		started bool
	)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, answerDelimiter) {
			n := strings.TrimSpace(strings.TrimPrefix(trimmed, answerDelimiter))
			n = strings.TrimRight(n, ":.")
			if n != fmt.Sprint(next) {
				return nil, false
			}
			if started {
				answers = append(answers, strings.TrimSpace(strings.Join(current, "\n")))
			}
			current = current[:0]
			started = true
			next++
			continue
		}
		if started {
			current = append(current, line)
		}
	}
	if started {
		answers = append(answers, strings.TrimSpace(strings.Join(current, "\n")))
	}
	if len(answers) != want {
		return nil, false
	}
	for _, a := range answers {
		if a == "" {
			return nil, false
		}
	}
	return answers, true
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
