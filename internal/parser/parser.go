// Package parser extracts tasks, log entries, and task mentions from Markdown notes.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/starford/vaultd/internal/models"
)

const maxExcerptRunes = 120

var (
	taskLineRe   = regexp.MustCompile(`^\s*-\s*\[([ xX])\]\s+\[(T-[0-9A-Za-z_-]+)\]\s*(.*)$`)
	timePrefixRe = regexp.MustCompile(`^\s*-\s*([0-9]{1,2}:[0-9]{2}(?:\s?(?i:am|pm))?)\s+(.*)$`)
	taskRefRe    = regexp.MustCompile(`\[(T-[0-9A-Za-z_-]+)\]`)
)

// Parser turns a note into its derived records.
type Parser interface {
	Parse(note models.Note) models.ParsedNote
}

type section int

const (
	sectionOther section = iota
	sectionTasks
	sectionLog
)

// Markdown is the regex-based Parser for the "## Tasks" / "## Log" note format.
type Markdown struct {
	now func() time.Time
}

var _ Parser = (*Markdown)(nil)

// Option configures a Markdown parser.
type Option func(*Markdown)

// WithClock overrides the clock used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Markdown) {
		m.now = now
	}
}

// New returns a Markdown parser.
func New(opts ...Option) *Markdown {
	m := &Markdown{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Parse scans note line by line. Text that does not match a recognized shape is
// ignored; Parse never fails.
func (m *Markdown) Parse(note models.Note) models.ParsedNote {
	out := models.ParsedNote{Note: note}
	now := m.now().UTC()

	lines := splitLines(note.Content)
	current := sectionOther

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRightFunc(lines[i], unicode.IsSpace)
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)

		if name, ok := headingName(trimmed); ok {
			current = sectionFor(name)
			continue
		}

		switch current {
		case sectionTasks:
			caps := taskLineRe.FindStringSubmatch(trimmed)
			if caps == nil {
				continue
			}
			extra, next := collectContinuation(lines, i+1)
			i = next - 1
			out.Tasks = append(out.Tasks, buildTask(note.ID, caps, extra, now))

		case sectionLog:
			if !strings.HasPrefix(trimmed, "- ") {
				continue
			}
			lineNumber := i + 1
			extra, next := collectContinuation(lines, i+1)
			i = next - 1
			entry, mentions := buildLogEntry(note.ID, line, lineNumber, extra)
			out.LogEntries = append(out.LogEntries, entry)
			out.Mentions = append(out.Mentions, mentions...)
		}
	}

	return out
}

func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// headingName returns the name of a level-two heading.
func headingName(trimmed string) (string, bool) {
	rest, ok := strings.CutPrefix(trimmed, "## ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func sectionFor(name string) section {
	switch {
	case strings.EqualFold(name, "tasks"):
		return sectionTasks
	case strings.EqualFold(name, "log"):
		return sectionLog
	default:
		return sectionOther
	}
}

// collectContinuation gathers indented lines following a list item. It returns
// the trimmed lines and the index of the first line not consumed.
func collectContinuation(lines []string, start int) ([]string, int) {
	var extra []string
	i := start
	for ; i < len(lines); i++ {
		next := lines[i]
		trimmed := strings.TrimLeftFunc(next, unicode.IsSpace)
		if strings.HasPrefix(trimmed, "## ") || strings.HasPrefix(trimmed, "- ") || strings.TrimSpace(next) == "" {
			break
		}
		if next[0] != ' ' && next[0] != '\t' {
			break
		}
		extra = append(extra, strings.TrimSpace(next))
	}
	return extra, i
}

func combine(base string, extra []string) string {
	combined := strings.TrimSpace(base)
	for _, e := range extra {
		if combined != "" {
			combined += "\n"
		}
		combined += e
	}
	return combined
}

func buildTask(noteID models.NoteID, caps []string, extra []string, now time.Time) models.Task {
	status := models.StatusOpen
	var closedAt *time.Time
	if strings.EqualFold(caps[1], "x") {
		status = models.StatusDone
		closed := now
		closedAt = &closed
	}

	title, tags := SplitTitleAndTags(combine(caps[3], extra))
	source := noteID

	return models.Task{
		ID:           models.TaskID(caps[2]),
		Title:        title,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
		ClosedAt:     closedAt,
		Tags:         tags,
		SourceNoteID: &source,
	}
}

func buildLogEntry(noteID models.NoteID, line string, lineNumber int, extra []string) (models.LogEntry, []models.TaskMention) {
	var timestamp *string
	var remainder string
	if caps := timePrefixRe.FindStringSubmatch(line); caps != nil {
		ts := caps[1]
		timestamp = &ts
		remainder = caps[2]
	} else {
		remainder = strings.TrimPrefix(strings.TrimLeftFunc(line, unicode.IsSpace), "- ")
	}

	combined := combine(remainder, extra)
	body, tags := SplitTitleAndTags(combined)
	entryID := models.LogEntryID(fmt.Sprintf("%s:%d", noteID, lineNumber))

	taskIDs := []models.TaskID{}
	var mentions []models.TaskMention
	for _, ref := range taskRefRe.FindAllStringSubmatch(combined, -1) {
		id := models.TaskID(ref[1])
		taskIDs = append(taskIDs, id)
		mentionEntry := entryID
		mentions = append(mentions, models.TaskMention{
			TaskID:     id,
			NoteID:     noteID,
			LogEntryID: &mentionEntry,
			Excerpt:    Excerpt(combined),
		})
	}

	return models.LogEntry{
		ID:         entryID,
		NoteID:     noteID,
		LineNumber: lineNumber,
		Timestamp:  timestamp,
		Content:    body,
		Tags:       tags,
		TaskIDs:    taskIDs,
	}, mentions
}

// SplitTitleAndTags separates "#tag" tokens from the rest of s. Tags keep their
// order of appearance, duplicates included. When s consists only of tags the
// trimmed input is returned as the title.
func SplitTitleAndTags(s string) (string, []string) {
	tags := []string{}
	var words []string
	for _, tok := range strings.Fields(s) {
		if tag, ok := strings.CutPrefix(tok, "#"); ok && tag != "" {
			tags = append(tags, tag)
			continue
		}
		words = append(words, tok)
	}
	if len(words) == 0 {
		return strings.TrimSpace(s), tags
	}
	return strings.Join(words, " "), tags
}

// Excerpt truncates s to 120 runes, appending an ellipsis when cut.
func Excerpt(s string) string {
	if utf8.RuneCountInString(s) <= maxExcerptRunes {
		return s
	}
	return string([]rune(s)[:maxExcerptRunes]) + "…"
}
