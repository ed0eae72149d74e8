package analysis

import (
	"fmt"

	"github.com/zombor/scan-insight/internal/subject"
)

const defaultInstruction = "Explain the content clearly and concisely, highlighting the key points a student should understand."

var instructions = map[subject.Tag]string{
	subject.Math:       "Solve the problem step by step, showing each calculation, and state the final answer clearly.",
	subject.Science:    "Explain the scientific concepts involved, name the relevant laws or processes, and work through any problems including units.",
	subject.History:    "Place the text in its historical context, identify the key people, dates and events, and explain their significance.",
	subject.Literature: "Analyze the themes, literary devices, tone and meaning of the passage, then summarize it briefly.",
	subject.Language:   "Translate the text into English if needed, explain notable grammar and vocabulary, and point out any errors.",
}

// Instruction returns the analysis instructions for tag, or the default
// instructions for an unrecognized tag.
func Instruction(tag subject.Tag) string {
	if s, ok := instructions[tag]; ok {
		return s
	}
	return defaultInstruction
}

// BuildPrompt embeds the domain, its instructions and the extracted text
// verbatim.
func BuildPrompt(tag subject.Tag, text string) string {
	return fmt.Sprintf(`You are an AI assistant specialized in %s. Analyze the following text that was scanned from an image.

Instructions: %s

Text:
%s

Analysis:`, tag, Instruction(tag), text)
}

// QuestionPrompt is the prompt for a quick question typed by the user.
func QuestionPrompt(tag subject.Tag, question string) string {
	return fmt.Sprintf("You are an AI assistant specialized in %s. Provide a concise answer to the following question: %s", tag, question)
}
