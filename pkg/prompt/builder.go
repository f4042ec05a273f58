// Package prompt folds a multi-turn conversation into the single linear
// prompt the engine continues from.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/papercomputeco/solo/pkg/llm"
)

// Persona defaults.
const (
	DefaultUserLabel      = "User"
	DefaultAssistantLabel = "AI"
	DefaultDelimiter      = ":"
)

// Builder renders conversations. A Builder is immutable after New and safe
// for concurrent use.
type Builder struct {
	userLabel      string
	assistantLabel string
	delimiter      string
	pronouns       *pronounRewriter
}

// New creates a Builder. Empty arguments fall back to the defaults.
func New(userLabel, assistantLabel, delimiter string) *Builder {
	if userLabel == "" {
		userLabel = DefaultUserLabel
	}
	if assistantLabel == "" {
		assistantLabel = DefaultAssistantLabel
	}
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return &Builder{
		userLabel:      userLabel,
		assistantLabel: assistantLabel,
		delimiter:      delimiter,
		pronouns:       newPronounRewriter(assistantLabel),
	}
}

// UserLabel returns the human persona name.
func (b *Builder) UserLabel() string { return b.userLabel }

// AssistantLabel returns the assistant persona name.
func (b *Builder) AssistantLabel() string { return b.assistantLabel }

// DefaultStop is the stop sequence used for chat requests that do not name
// one: the point where the engine would start speaking for the user.
func (b *Builder) DefaultStop() string {
	return "\n\n" + b.userLabel
}

// Build renders turns into a prompt ending in the assistant cue. Turns with
// an unknown role are skipped. The caller must reject an empty conversation.
func (b *Builder) Build(turns []llm.Message) string {
	preamble := b.intro() + b.persona()

	var body strings.Builder
	for _, turn := range turns {
		switch turn.Role {
		case llm.RoleSystem:
			// Latest system turn wins.
			content := strings.TrimSpace(strings.ReplaceAll(collapseNewlines(turn.Content), "\n", " "))
			preamble = b.intro() + b.pronouns.rewrite(content) + "\n\n"
		case llm.RoleUser:
			b.writeTurn(&body, b.userLabel, turn.Content)
		case llm.RoleAssistant:
			b.writeTurn(&body, b.assistantLabel, turn.Content)
		}
	}

	return preamble + body.String() + b.assistantLabel + b.delimiter
}

func (b *Builder) writeTurn(w *strings.Builder, label, content string) {
	w.WriteString(label)
	w.WriteString(b.delimiter)
	w.WriteString(" ")
	w.WriteString(strings.TrimSpace(collapseNewlines(content)))
	w.WriteString("\n\n")
}

func (b *Builder) intro() string {
	return fmt.Sprintf("The following is a coherent verbose detailed conversation between an assistant named %s and a human named %s. ",
		b.assistantLabel, b.userLabel)
}

func (b *Builder) persona() string {
	return fmt.Sprintf("%[1]s is very intelligent, creative and friendly. "+
		"%[1]s is unlikely to disagree with %[2]s, and %[1]s doesn't like to ask %[2]s questions. "+
		"%[1]s likes to tell %[2]s a lot about its own opinions. "+
		"%[1]s usually gives %[2]s kind, helpful and informative advice.\n\n",
		b.assistantLabel, b.userLabel)
}

// collapseNewlines turns escaped newlines and CRLF into plain newlines and
// squeezes blank lines, so no paragraph break survives inside a turn.
func collapseNewlines(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for strings.Contains(s, "\n\n") {
		s = strings.ReplaceAll(s, "\n\n", "\n")
	}
	return s
}

// pronounRules are applied as one left-to-right pass. At a given position
// the earlier rule wins, so the longer forms come first.
var pronounRules = []struct {
	find    string
	replace string
}{
	{"You are", "%s is"},
	{"you are", "%s is"},
	{"You're", "%s is"},
	{"you're", "%s is"},
	{"Your", "%s's"},
	{"your", "%s's"},
	{"You", "%s"},
	{"you", "%s"},
}

// secondPersonCJK has no ASCII word boundary, so it is replaced verbatim.
const secondPersonCJK = "你"

type pronounRewriter struct {
	pattern      *regexp.Regexp
	replacements map[string]string
	name         string
}

func newPronounRewriter(name string) *pronounRewriter {
	alternatives := make([]string, 0, len(pronounRules))
	replacements := make(map[string]string, len(pronounRules))
	for _, rule := range pronounRules {
		alternatives = append(alternatives, regexp.QuoteMeta(rule.find))
		replacements[rule.find] = fmt.Sprintf(rule.replace, name)
	}

	return &pronounRewriter{
		pattern:      regexp.MustCompile(`\b(?:` + strings.Join(alternatives, "|") + `)\b`),
		replacements: replacements,
		name:         name,
	}
}

func (r *pronounRewriter) rewrite(s string) string {
	s = r.pattern.ReplaceAllStringFunc(s, func(match string) string {
		return r.replacements[match]
	})
	return strings.ReplaceAll(s, secondPersonCJK, r.name)
}
