package render

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// logYAMLWindow prints a five-line window around a YAML parse error's
// reported line number to aid diagnosis. It is a diagnostic aid, not a
// contract: if the error text doesn't carry a line number, it logs
// nothing beyond the error itself.
func logYAMLWindow(log *slog.Logger, err error, rendered string) {
	if log == nil || err == nil {
		return
	}

	match := yamlLineRe.FindStringSubmatch(err.Error())
	if match == nil {
		log.Error("yaml re-parse failed", "error", err)
		return
	}

	// gopkg.in/yaml.v3 reports 0-indexed line numbers in its error text.
	line, convErr := strconv.Atoi(match[1])
	if convErr != nil {
		log.Error("yaml re-parse failed", "error", err)
		return
	}
	line++

	lines := strings.Split(rendered, "\n")
	start := line - 2
	if start < 1 {
		start = 1
	}
	end := line + 2
	if end > len(lines) {
		end = len(lines)
	}

	var window strings.Builder
	for i := start; i <= end; i++ {
		window.WriteString(strconv.Itoa(i))
		window.WriteString(": ")
		window.WriteString(lines[i-1])
		window.WriteString("\n")
	}

	log.Error("yaml re-parse failed", "error", err, "line", line, "window", window.String())
}
