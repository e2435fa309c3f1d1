package orchestrator

import (
	"fmt"
	"strings"

	"github.com/duckmesh/nlq/internal/llm"
)

// Prompt builders are pure: structured inputs in, llm.Prompt out.

type PromptSettings struct {
	Dialect string
	// MaxRows caps the rows of any result embedded in a prompt.
	MaxRows   int
	Formatter Formatter
}

func IntentPrompt(question string) llm.Prompt {
	return llm.Prompt{
		System: "You classify questions sent to a database assistant. " +
			"Answer with exactly one label and nothing else: CHITCHAT, DATA_RETRIEVAL or INSIGHTS.\n" +
			"CHITCHAT: greetings, small talk and general conversation that needs no data.\n" +
			"DATA_RETRIEVAL: requests for specific data points, lists, counts or summaries answerable with one query.\n" +
			"INSIGHTS: requests for analysis, trends, comparisons or explanations that may need several queries.",
		User: "Question: " + question + "\nLabel:",
	}
}

func ChitchatPrompt(question string) llm.Prompt {
	return llm.Prompt{
		System: "You are a friendly assistant for a company database. Reply briefly and conversationally. " +
			"Do not invent any business data.",
		User: question,
	}
}

// SQLGenerationPrompt asks for one read-only statement. For insight rounds
// ledger carries the previous rounds; it is empty for plain retrieval.
func SQLGenerationPrompt(question, schemaText string, ledger Ledger, settings PromptSettings) llm.Prompt {
	var user strings.Builder
	user.WriteString(schemaText)
	user.WriteString("\n\nQuestion: ")
	user.WriteString(question)

	if ledger.Len() > 0 {
		user.WriteString("\n\nPrevious rounds:\n")
		user.WriteString(renderRounds(ledger, settings))
		if hint := ledger.LastHint(); hint != "" {
			user.WriteString("\n\nSuggested next step: ")
			user.WriteString(hint)
		}
		user.WriteString("\n\nWrite the next query that gathers data still missing. Do not repeat a query that already succeeded.")
	}
	user.WriteString("\n\nSQL:")

	return llm.Prompt{
		System: sqlSystemPrompt(settings.Dialect),
		User:   user.String(),
	}
}

func CorrectionPrompt(question, schemaText string, failed SQLAttempt, failure Outcome, settings PromptSettings) llm.Prompt {
	var user strings.Builder
	user.WriteString(schemaText)
	user.WriteString("\n\nQuestion: ")
	user.WriteString(question)
	user.WriteString("\n\nThis query failed:\n")
	user.WriteString(failed.SQL)
	user.WriteString("\n\nError")
	if failure.ErrorCode != "" {
		user.WriteString(" (code ")
		user.WriteString(failure.ErrorCode)
		user.WriteString(")")
	}
	user.WriteString(": ")
	user.WriteString(failure.ErrorMessage)
	user.WriteString("\n\nReturn a corrected query.\n\nSQL:")

	return llm.Prompt{
		System: sqlSystemPrompt(settings.Dialect) + " You fix queries that failed to execute.",
		User:   user.String(),
	}
}

func RetrievalSynthesisPrompt(question string, outcome Outcome, settings PromptSettings) llm.Prompt {
	return llm.Prompt{
		System: synthesisSystemPrompt,
		User: "Question: " + question + "\n\nQuery result (" + rowSummary(outcome) + "):\n" +
			settings.Formatter.FormatRows(outcome.Columns, outcome.Rows, settings.MaxRows, outcome.Truncated) +
			"\n\nAnswer:",
	}
}

func InsightSynthesisPrompt(question string, ledger Ledger, settings PromptSettings) llm.Prompt {
	return llm.Prompt{
		System: synthesisSystemPrompt + " Combine the results of all rounds into one insight and mention trends or comparisons the data supports.",
		User:   "Question: " + question + "\n\nData gathered:\n" + renderRounds(ledger, settings) + "\n\nAnswer:",
	}
}

func CompletenessPrompt(question string, ledger Ledger, settings PromptSettings) llm.Prompt {
	return llm.Prompt{
		System: "You decide whether gathered data is sufficient to answer an analytical question. " +
			"Reply YES if it is. Otherwise reply NO followed by the single most useful next query to run, described in words.",
		User: "Question: " + question + "\n\nData gathered:\n" + renderRounds(ledger, settings) + "\n\nIs this sufficient?",
	}
}

const synthesisSystemPrompt = "You answer questions about a company database using only the data provided. " +
	"Be concise. Keep numbers exactly as written: counts stay plain integers and currency values keep their separators and suffix."

func sqlSystemPrompt(dialect string) string {
	if dialect == "" {
		dialect = "SQL"
	}
	return fmt.Sprintf("You write a single read-only %s SELECT statement for the schema provided. "+
		"Return only the SQL, without explanation or markdown.", dialect)
}

func rowSummary(outcome Outcome) string {
	if outcome.Truncated {
		return fmt.Sprintf("first %d rows", outcome.RowCount())
	}
	return fmt.Sprintf("%d rows", outcome.RowCount())
}

func renderRounds(ledger Ledger, settings PromptSettings) string {
	var b strings.Builder
	for i, round := range ledger.Rounds() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Round %d query:\n%s\n", round.Index, round.Attempt.SQL)
		if round.Outcome.Success {
			fmt.Fprintf(&b, "Result (%s):\n", rowSummary(round.Outcome))
			b.WriteString(settings.Formatter.FormatRows(round.Outcome.Columns, round.Outcome.Rows, settings.MaxRows, round.Outcome.Truncated))
		} else {
			b.WriteString("Failed: ")
			b.WriteString(round.Outcome.ErrorMessage)
		}
	}
	return b.String()
}
