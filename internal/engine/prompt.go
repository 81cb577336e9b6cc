package engine

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter asks the operator which post to monitor when none is stored.
// An empty answer means "create the previewed post".
type Prompter interface {
	AskPostID(preview string) (string, error)
}

// LinePrompter prompts on a writer and reads one line of input
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter creates a prompter over the given streams, normally stdin and stdout
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) AskPostID(preview string) (string, error) {
	fmt.Fprint(p.out, preview)
	fmt.Fprint(p.out, "Please enter an existing status ID to listen to, or just hit enter\nto post and listen to the above status. ctrl-C cancels.\n> ")

	line, err := p.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", fmt.Errorf("failed to read post id: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// StaticPrompter always answers with the same id
type StaticPrompter string

func (p StaticPrompter) AskPostID(string) (string, error) {
	return string(p), nil
}

func postPreview(body, cw, privacy string, strict bool) string {
	const lineLength = 70

	var lines []string
	runes := []rune(body)
	for i := 0; i < len(runes); i += lineLength {
		end := i + lineLength
		if end > len(runes) {
			end = len(runes)
		}
		lines = append(lines, string(runes[i:end]))
	}

	mode := "NON-STRICT"
	if strict {
		mode = "STRICT"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\nWill post new %s status in %s mode:\n\n", strings.ToUpper(privacy), mode)
	b.WriteString("-----------------------------------------------------------\n")
	fmt.Fprintf(&b, " CW: %s\n\n %s\n", cw, strings.Join(lines, "\n"))
	b.WriteString("\n-----------------------------------------------------------\n\n")
	return b.String()
}
