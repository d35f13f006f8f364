package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/mailsift/ai"
)

const summaryResponseSchema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string"},
    "key_points": {"type": "array", "items": {"type": "string"}},
    "action_items": {"type": "array", "items": {"type": "string"}},
    "important_dates": {"type": "array", "items": {"type": "string"}},
    "contacts": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["summary", "key_points", "action_items", "important_dates", "contacts"],
  "additionalProperties": false
}`

const summaryPromptTemplate = `Summarize the email you are given and extract its key information.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- summary is a short summary of the email in 2-4 sentences, written in the language of the email.
- key_points lists the main points of the email.
- action_items lists what the reader is asked to do. Use [] if there is nothing to do.
- important_dates lists dates and deadlines together with what happens on them. Use [] if there are none.
- contacts lists people or organizations the reader may need to contact. Use [] if there are none.
- Include only facts stated in the email. Do not hallucinate.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "Hi team, the quarterly review moved to Friday 3pm. Please send your slides to Dana by Thursday."
Output:
{
  "summary": "The quarterly review was moved to Friday at 3pm and slides are due to Dana on Thursday.",
  "key_points": ["Quarterly review rescheduled to Friday 3pm"],
  "action_items": ["Send slides to Dana by Thursday"],
  "important_dates": ["Thursday: slides due", "Friday 3pm: quarterly review"],
  "contacts": ["Dana"]
}`

const classificationResponseSchema = `{
  "type": "object",
  "properties": {
    "category": {"type": "string", "enum": [%s]},
    "importance": {"type": "string", "enum": [%s]}
  },
  "required": ["category", "importance"],
  "additionalProperties": false
}`

const classificationPromptTemplate = `Classify the email you are given by category and importance.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Your output must exactly follow this schema:

%s

Importance:
- "high": needs attention soon, e.g. notices from a teacher or school, important work matters, urgent requests.
- "medium": worth reading, e.g. community notices, routine work mail.
- "low": can be ignored, e.g. advertising, software updates, promotions.

Category:
- "work": work related
- "education": school, courses and teaching
- "community": clubs, neighborhood and community groups
- "advertisement": advertising and promotions
- "notification": automated system notifications
- "personal": personal correspondence
- "other": anything else

Example:
Input:
Subject: Final exam moved to Monday
Sender: prof.lee@university.edu
Summary: The final exam was moved to Monday 9am in room 204.
Output:
{"category": "education", "importance": "high"}`

const answerPromptTemplate = `Answer the question using only the email context below. If the context does not
contain the answer, say that you do not know; do not make up an answer. Keep the answer short and direct.

Context:
%s`

func buildSummaryPrompt() string {
	return fmt.Sprintf(summaryPromptTemplate, summaryResponseSchema)
}

func buildClassificationPrompt() string {
	schema := fmt.Sprintf(classificationResponseSchema,
		quoteJoin(ai.CategoryNames()),
		quoteJoin(ai.ImportanceNames()))
	return fmt.Sprintf(classificationPromptTemplate, schema)
}

func buildClassificationInput(in ai.ClassifyInput) string {
	return fmt.Sprintf("Subject: %s\nSender: %s\nSummary: %s", in.Subject, in.Sender, in.Summary)
}

func buildAnswerPrompt(contextText string) string {
	if strings.TrimSpace(contextText) == "" {
		contextText = "(no matching emails)"
	}
	return fmt.Sprintf(answerPromptTemplate, contextText)
}

func quoteJoin(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + v + `"`
	}
	return strings.Join(quoted, ", ")
}
