package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/errs"
	"github.com/koustreak/querygate/internal/executor"
)

func dialectName(d database.Dialect) string {
	switch d {
	case database.DialectSQLServer:
		return "SQL Server"
	case database.DialectMySQL:
		return "MySQL"
	case database.DialectDuckDB:
		return "DuckDB"
	default:
		return "PostgreSQL"
	}
}

func limitHint(d database.Dialect) string {
	if d == database.DialectSQLServer {
		return "include TOP 100 unless the user asks for fewer"
	}
	return "include LIMIT 100 unless the user asks for fewer"
}

func generatePrompts(d database.Dialect, question, schemaText string) (system, user string) {
	name := dialectName(d)
	system = fmt.Sprintf("You are a %s assistant. Return exactly one read-only SQL query. "+
		"Output SQL text only, no markdown and no explanation. "+
		"Rules: only SELECT/CTE statements, %s.", name, limitHint(d))
	user = fmt.Sprintf("Question:\n%s\n\nSchema context:\n%s\n\nReturn one %s query now.",
		strings.TrimSpace(question), schemaText, name)
	return system, user
}

const explainSystemPrompt = "You explain SQL query results clearly for a beginner. " +
	"Be concise and mention if results are truncated."

func explainPrompts(question, sql string, result *executor.ResultSet) (system, user string, err error) {
	sample, err := json.Marshal(result.Sample(SampleRows))
	if err != nil {
		return "", "", errs.Wrap(errs.ErrKindInvalidInput, "encode sample rows", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Original question: %s\n", strings.TrimSpace(question))
	fmt.Fprintf(&b, "SQL used: %s\n", sql)
	fmt.Fprintf(&b, "Sample rows (max %d): %s\n", SampleRows, sample)
	fmt.Fprintf(&b, "Total rows returned to app: %d", result.Count)
	if result.Truncated() {
		fmt.Fprintf(&b, "\nThe result was truncated at %d rows; more rows may exist.", result.Limit)
	}
	return explainSystemPrompt, b.String(), nil
}
