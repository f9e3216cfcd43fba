package sandtrace

import (
	"fmt"
	"strings"
)

// annotateStderrWithDenials appends denied-access information to stderr
// output, so a build failure's cause (a file the policy refused) is
// visible next to the tool's own error message without having to
// cross-reference the reports file. If there are no denials, stderr is
// returned unchanged.
func annotateStderrWithDenials(stderr string, denials []Denial) string {
	if len(denials) == 0 {
		return stderr
	}
	var b strings.Builder
	b.WriteString(stderr)
	b.WriteString("\n<sandtrace_denials>\n")
	for _, d := range denials {
		fmt.Fprintf(&b, "%s: %s denied %s", d.Process, d.Kind, d.Path)
		if d.SecondPath != "" {
			fmt.Fprintf(&b, " -> %s", d.SecondPath)
		}
		b.WriteString("\n")
	}
	b.WriteString("</sandtrace_denials>")
	return b.String()
}
