package mcpserver

// NoteFormatContract describes the Markdown note format that the indexer
// understands. LLM consumers should follow it when writing notes.
const NoteFormatContract = `# Vault Note Format Contract

Notes are plain Markdown files. Only two level-two sections are interpreted;
everything else is kept verbatim and ignored by the index.

## Structure

` + "```" + `markdown
# 2025-03-15

## Tasks

- [ ] [T-2025-001] Draft the quarterly report #work #writing
    Continuation lines are indented and belong to the task above.
- [x] [T-2025-002] Book flights #travel

## Log

- 9:30am Started on the report outline [T-2025-001] #work
- 14:00 Call with the agency about [T-2025-002]
    Indented lines continue the entry.
` + "```" + `

## Rules

1. **Section headings** are ` + "`" + `## Tasks` + "`" + ` and ` + "`" + `## Log` + "`" + ` (case-insensitive).
   Any other ` + "`" + `## ` + "`" + ` heading ends the current section.
2. **Tasks** are checkbox list items followed by a bracketed id:
   ` + "`" + `- [ ] [T-<id>] title` + "`" + `. ` + "`" + `[x]` + "`" + ` marks the task done. Ids use letters, digits,
   ` + "`" + `-` + "`" + ` and ` + "`" + `_` + "`" + ` after the ` + "`" + `T-` + "`" + ` prefix and must be unique across the vault.
3. **Log entries** are list items. An optional leading clock time
   (` + "`" + `9:30` + "`" + `, ` + "`" + `09:30` + "`" + `, ` + "`" + `9:30am` + "`" + `, ` + "`" + `9:30 PM` + "`" + `) becomes the entry timestamp.
4. **Task references** inside log entries use the bracketed id, e.g. ` + "`" + `[T-2025-001]` + "`" + `.
   Each reference is recorded as a mention of that task.
5. **Tags** are whitespace-separated ` + "`" + `#words` + "`" + ` anywhere in a task title or log entry.
   They are case-sensitive.
6. **Continuation lines** start with a space or tab. A blank line, a new list item
   or a heading ends the item.
7. **Daily notes** are named ` + "`" + `YYYY-MM-DD.md` + "`" + `; the file name supplies the note date.
8. **Encoding** is UTF-8. File paths end with ` + "`" + `.md` + "`" + ` and use forward slashes.
`
