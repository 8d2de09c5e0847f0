package rag

import (
	"fmt"
	"strings"
)

const maxExcerptRunes = 1200

// NoContextAnswer is returned when generation comes back empty.
const NoContextAnswer = "I could not find enough information in the legal sources available to me to answer this question. Please consult a qualified advocate for advice on your situation."

func groundedSystemPrompt(sources []Source) string {
	lines := []string{
		"ROLE: Legal research assistant answering questions about Kenyan law.",
		"TASK: Answer the user's question using the legal sources below.",
		"",
		"SOURCES:",
	}
	if len(sources) == 0 {
		lines = append(lines, "(none retrieved)")
	}
	for i, src := range sources {
		lines = append(lines, fmt.Sprintf("[%d] %s", i+1, defaultString(src.Title, "Untitled document")))
		if src.Citation != "" {
			lines = append(lines, "Citation: "+src.Citation)
		}
		if src.Section != "" {
			lines = append(lines, "Section: "+src.Section)
		}
		lines = append(lines,
			fmt.Sprintf("Relevance: %.0f%%", src.Score*100),
			"Excerpt: "+excerpt(src.Text, maxExcerptRunes),
			"",
		)
	}
	lines = append(lines,
		"RULES:",
		"- Cite the sources you rely on by number, title and citation.",
		"- If the sources do not contain the information needed, say so plainly rather than guessing.",
		"- Do not invent statutes, sections or case names.",
		"- Recommend consulting a qualified legal professional for advice on specific circumstances.",
	)
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func ungroundedSystemPrompt() string {
	return strings.TrimSpace(strings.Join([]string{
		"ROLE: Legal information assistant for questions about Kenyan law.",
		"TASK: Give general legal information in plain language.",
		"RULES:",
		"- You have no retrieved sources for this question; answer from general knowledge and say so.",
		"- Flag uncertainty and any point where the law may have changed.",
		"- Recommend consulting a qualified legal professional for advice on specific circumstances.",
	}, "\n"))
}

func excerpt(text string, max int) string {
	text = strings.TrimSpace(text)
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return strings.TrimSpace(string(r[:max])) + "..."
}

func defaultString(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
