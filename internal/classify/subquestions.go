package classify

import (
	"bufio"
	"regexp"
	"strings"
)

// Sub-question extraction parses the answering capability's decomposition
// output into child question texts. The parser is line-based and
// deterministic: numbered or bulleted items first, bare question-mark lines
// as a fallback.

var subQuestionMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s+(.+)$`)

// ExtractQuestions parses sub-questions from text, capped at max.
func ExtractQuestions(text string, max int) []string {
	if max <= 0 {
		return nil
	}

	var questions []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := scanner.Text()
		if m := subQuestionMarker.FindStringSubmatch(line); len(m) > 1 {
			if q := cleanQuestion(m[1]); q != "" {
				questions = append(questions, q)
			}
		}
	}

	// No list markers: fall back to lines ending in a question mark.
	if len(questions) == 0 {
		scanner = bufio.NewScanner(strings.NewReader(text))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if strings.HasSuffix(line, "?") {
				if q := cleanQuestion(line); q != "" {
					questions = append(questions, q)
				}
			}
		}
	}

	if len(questions) > max {
		questions = questions[:max]
	}
	return questions
}

func cleanQuestion(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_`")
	return strings.TrimSpace(s)
}
