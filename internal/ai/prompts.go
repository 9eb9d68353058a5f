package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// PromptKind names the supported AI operations. The value is also what the
// request log stores.
type PromptKind string

const (
	KindSummarize   PromptKind = "summarize"
	KindExplain     PromptKind = "explain"
	KindQuiz        PromptKind = "quiz"
	KindSuggestTags PromptKind = "suggest_tags"
)

// MaxTextChars caps the content sent to the provider. Longer input is
// truncated, not rejected.
const MaxTextChars = 8000

func truncate(text string) string {
	if len(text) <= MaxTextChars {
		return text
	}
	cut := MaxTextChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func summarizePrompt(text string) (system, user string) {
	system = "You are a helpful academic assistant. Provide clear, concise summaries of study materials."
	user = "Please provide a comprehensive summary of the following content in bullet points:\n\n" + truncate(text)
	return
}

func explainPrompt(text, question string) (system, user string) {
	system = "You are an expert tutor. Explain concepts clearly with examples where appropriate."
	text = truncate(text)
	switch {
	case question != "" && text != "":
		user = fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nProvide a clear, detailed explanation suitable for students.", text, question)
	case question != "":
		user = fmt.Sprintf("Question: %s\n\nProvide a clear, detailed explanation suitable for students.", question)
	default:
		user = "Explain the following content in detail, making it easy for students to understand:\n\n" + text
	}
	return
}

func quizPrompt(text string, count int) (system, user string) {
	if count < 1 {
		count = 1
	}
	if count > 10 {
		count = 10
	}
	system = "You are a quiz generator. Create multiple choice questions with 4 options each."
	user = fmt.Sprintf(`Generate %d multiple choice questions based on this content:

%s

Format each question as:
Q1. [Question]
A) [Option]
B) [Option]
C) [Option]
D) [Option]
Correct Answer: [Letter]

Make questions challenging but fair for students.`, count, truncate(text))
	return
}

func suggestTagsPrompt(text, filename string) (system, user string) {
	system = "You are a content analyzer. Suggest 3-7 relevant, concise tags for academic content."
	var b strings.Builder
	if filename != "" {
		fmt.Fprintf(&b, "Filename: %s\n\n", filename)
	}
	b.WriteString("Content:\n")
	b.WriteString(truncate(text))
	b.WriteString("\n\nSuggest relevant tags for this content. Return ONLY the tags as a comma-separated list (e.g., physics, mechanics, kinematics).\nMake tags lowercase, concise, and specific to the academic subject matter.")
	user = b.String()
	return
}
