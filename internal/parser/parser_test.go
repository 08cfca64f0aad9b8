package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/vaultd/internal/models"
)

var fixedNow = time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

func parse(content string) models.ParsedNote {
	p := New(WithClock(func() time.Time { return fixedNow }))
	return p.Parse(models.Note{ID: "note.md", Path: "note.md", Title: "note", Content: content})
}

func TestParse_CheckboxTask(t *testing.T) {
	r := parse("## Tasks\n- [ ] [T-1] Buy milk #errand\n")
	if len(r.Tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(r.Tasks))
	}
	task := r.Tasks[0]
	if task.ID != "T-1" {
		t.Errorf("id = %q, want T-1", task.ID)
	}
	if task.Title != "Buy milk" {
		t.Errorf("title = %q, want %q", task.Title, "Buy milk")
	}
	if len(task.Tags) != 1 || task.Tags[0] != "errand" {
		t.Errorf("tags = %v, want [errand]", task.Tags)
	}
	if task.Status != models.StatusOpen {
		t.Errorf("status = %q, want Open", task.Status)
	}
	if task.ClosedAt != nil {
		t.Errorf("closed_at = %v, want nil", task.ClosedAt)
	}
	if task.SourceNoteID == nil || *task.SourceNoteID != "note.md" {
		t.Errorf("source note = %v", task.SourceNoteID)
	}
}

func TestParse_ClosedTask(t *testing.T) {
	for _, mark := range []string{"x", "X"} {
		r := parse("## Tasks\n- [" + mark + "] [T-2] Ship it\n")
		if len(r.Tasks) != 1 {
			t.Fatalf("mark %q: len(tasks) = %d", mark, len(r.Tasks))
		}
		task := r.Tasks[0]
		if task.Status != models.StatusDone {
			t.Errorf("mark %q: status = %q, want Done", mark, task.Status)
		}
		if task.ClosedAt == nil || !task.ClosedAt.Equal(task.CreatedAt) || !task.CreatedAt.Equal(task.UpdatedAt) {
			t.Errorf("mark %q: timestamps differ: created=%v updated=%v closed=%v", mark, task.CreatedAt, task.UpdatedAt, task.ClosedAt)
		}
		if !task.CreatedAt.Equal(fixedNow) {
			t.Errorf("created_at = %v, want %v", task.CreatedAt, fixedNow)
		}
	}
}

func TestParse_TaskContinuation(t *testing.T) {
	r := parse("## Tasks\n- [ ] [T-1] Buy milk #errand\n  extra detail #home\n- [ ] [T-3] Next\n")
	if len(r.Tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(r.Tasks))
	}
	title := r.Tasks[0].Title
	if !strings.Contains(title, "Buy milk") || !strings.Contains(title, "extra detail") {
		t.Errorf("title = %q, want both fragments", title)
	}
	if got := r.Tasks[0].Tags; len(got) != 2 || got[0] != "errand" || got[1] != "home" {
		t.Errorf("tags = %v, want [errand home]", got)
	}
	if r.Tasks[1].ID != "T-3" {
		t.Errorf("second task id = %q", r.Tasks[1].ID)
	}
}

func TestParse_ContinuationStopsAtUnindentedLine(t *testing.T) {
	r := parse("## Tasks\n- [ ] [T-1] First\nnot indented\n  also ignored\n")
	if len(r.Tasks) != 1 {
		t.Fatalf("len(tasks) = %d", len(r.Tasks))
	}
	if r.Tasks[0].Title != "First" {
		t.Errorf("title = %q, want First", r.Tasks[0].Title)
	}
}

func TestParse_TaskOutsideSectionIgnored(t *testing.T) {
	r := parse("- [ ] [T-1] Orphan\n## Notes\n- [ ] [T-2] Also orphan\n")
	if len(r.Tasks) != 0 {
		t.Errorf("expected no tasks, got %v", r.Tasks)
	}
}

func TestParse_MentionCreation(t *testing.T) {
	r := parse("## Log\n- 09:00 discussed [T-1] and [T-2]\n")
	if len(r.LogEntries) != 1 {
		t.Fatalf("len(log) = %d, want 1", len(r.LogEntries))
	}
	entry := r.LogEntries[0]
	if entry.Timestamp == nil || *entry.Timestamp != "09:00" {
		t.Errorf("timestamp = %v, want 09:00", entry.Timestamp)
	}
	if entry.ID != "note.md:2" || entry.LineNumber != 2 {
		t.Errorf("entry id = %q line = %d", entry.ID, entry.LineNumber)
	}
	if len(r.Mentions) != 2 {
		t.Fatalf("len(mentions) = %d, want 2", len(r.Mentions))
	}
	for i, want := range []models.TaskID{"T-1", "T-2"} {
		m := r.Mentions[i]
		if m.TaskID != want {
			t.Errorf("mention[%d].task = %q, want %q", i, m.TaskID, want)
		}
		if m.LogEntryID == nil || *m.LogEntryID != entry.ID {
			t.Errorf("mention[%d].log_entry_id = %v", i, m.LogEntryID)
		}
		if m.Excerpt != r.Mentions[0].Excerpt {
			t.Errorf("excerpts differ")
		}
	}
	if len(entry.TaskIDs) != 2 {
		t.Errorf("task ids = %v", entry.TaskIDs)
	}
}

func TestParse_MultilineLog(t *testing.T) {
	content := `
# 2025-03-15

## Tasks
- [ ] [T-2025-001] Implement parser #projects/note-app
  capture multiline context
  more detail #people/jack
- [x] [T-2025-002] Finish docs

## Log
- 09:10 Investigated crash [T-2025-001] #projects/note-app
  linked follow-up [T-2025-002]
- Wrote general notes
`
	r := parse(content)
	if len(r.Tasks) != 2 {
		t.Fatalf("len(tasks) = %d", len(r.Tasks))
	}
	if got := r.Tasks[0].Tags; len(got) != 2 || got[0] != "projects/note-app" || got[1] != "people/jack" {
		t.Errorf("tags = %v", got)
	}
	if len(r.LogEntries) != 2 {
		t.Fatalf("len(log) = %d", len(r.LogEntries))
	}
	first := r.LogEntries[0]
	if !strings.Contains(first.Content, "Investigated crash") || !strings.Contains(first.Content, "linked follow-up") {
		t.Errorf("content = %q", first.Content)
	}
	if len(first.Tags) != 1 || first.Tags[0] != "projects/note-app" {
		t.Errorf("log tags = %v", first.Tags)
	}
	if r.LogEntries[1].Timestamp != nil {
		t.Errorf("untimed entry has timestamp %q", *r.LogEntries[1].Timestamp)
	}
	if r.LogEntries[1].Content != "Wrote general notes" {
		t.Errorf("content = %q", r.LogEntries[1].Content)
	}
	if len(r.Mentions) != 2 {
		t.Errorf("len(mentions) = %d, want 2", len(r.Mentions))
	}
}

func TestParse_AmPmTimestamps(t *testing.T) {
	r := parse("## Log\n- 10:45pm Reviewed plan\n- 7:05 AM Woke up\n- 09:00 amazing results\n")
	want := []string{"10:45pm", "7:05 AM", "09:00"}
	if len(r.LogEntries) != len(want) {
		t.Fatalf("len(log) = %d", len(r.LogEntries))
	}
	for i, w := range want {
		ts := r.LogEntries[i].Timestamp
		if ts == nil || *ts != w {
			t.Errorf("entry %d timestamp = %v, want %q", i, ts, w)
		}
	}
	if r.LogEntries[2].Content != "amazing results" {
		t.Errorf("content = %q", r.LogEntries[2].Content)
	}
}

func TestParse_IndentedHeadings(t *testing.T) {
	content := "\n  ## Tasks\n  - [ ] [T-2025-010] Indented heading still works\n\n    ## Log\n    - 12:00 Something [T-2025-010]\n"
	r := parse(content)
	if len(r.Tasks) != 1 || r.Tasks[0].ID != "T-2025-010" {
		t.Fatalf("tasks = %v", r.Tasks)
	}
	if len(r.LogEntries) != 1 || len(r.Mentions) != 1 {
		t.Errorf("log = %d mentions = %d", len(r.LogEntries), len(r.Mentions))
	}
}

func TestParse_HeadingCaseInsensitive(t *testing.T) {
	r := parse("## TASKS\n- [ ] [T-1] a\n## log\n- b\n")
	if len(r.Tasks) != 1 || len(r.LogEntries) != 1 {
		t.Errorf("tasks = %d log = %d", len(r.Tasks), len(r.LogEntries))
	}
}

func TestParse_CRLF(t *testing.T) {
	r := parse("## Tasks\r\n- [ ] [T-1] Windows line #crlf\r\n")
	if len(r.Tasks) != 1 || r.Tasks[0].Title != "Windows line" {
		t.Fatalf("tasks = %+v", r.Tasks)
	}
}

func TestSplitTitleAndTags(t *testing.T) {
	title, tags := SplitTitleAndTags("Buy  milk #a # #b #a")
	if title != "Buy milk #" {
		t.Errorf("title = %q", title)
	}
	if len(tags) != 3 || tags[0] != "a" || tags[1] != "b" || tags[2] != "a" {
		t.Errorf("tags = %v", tags)
	}
}

func TestSplitTitleAndTags_TagOnly(t *testing.T) {
	title, tags := SplitTitleAndTags("  #only #tags ")
	if title != "#only #tags" {
		t.Errorf("title = %q", title)
	}
	if len(tags) != 2 {
		t.Errorf("tags = %v", tags)
	}
}

func TestExcerpt(t *testing.T) {
	short := "short"
	if Excerpt(short) != short {
		t.Errorf("short excerpt changed")
	}
	long := strings.Repeat("é", 130)
	got := Excerpt(long)
	if got != strings.Repeat("é", 120)+"…" {
		t.Errorf("excerpt = %q", got)
	}
}
