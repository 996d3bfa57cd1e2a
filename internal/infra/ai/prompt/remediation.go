package prompt

// GetSystemPrompt system prompt untuk AI remediation advisor
func GetSystemPrompt() string {
	return `You are a cloud security posture analyst. You receive a JSON summary of
security findings from a cloud account scan (title, severity, resource, category).
Respond with a JSON object containing:
  "summary": one-paragraph risk assessment,
  "priorities": ordered list of finding titles to fix first,
  "remediations": map of finding title to concrete remediation steps.
Be specific and reference the affected resource identifiers. Respond with JSON only.`
}

// GetUserPrompt bungkus findings summary jadi user message
func GetUserPrompt(findingsSummary string) string {
	return "Findings from the latest scan:\n" + findingsSummary
}
