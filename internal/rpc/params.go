package rpc

import (
	"bytes"
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vaultd/internal/models"
)

// decodeParams unmarshals raw into dst and validates it. Absent params
// decode as an empty object.
func decodeParams(raw json.RawMessage, dst validation.Validatable) error {
	if len(raw) == 0 || bytes.Equal(raw, nullID) {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams(err)
	}
	if err := dst.Validate(); err != nil {
		return invalidParams(err)
	}
	return nil
}

var statusNames = func() []any {
	out := make([]any, len(models.Statuses))
	for i, st := range models.Statuses {
		out[i] = string(st)
	}
	return out
}()

type listTasksParams struct {
	Status       *string  `json:"status"`
	Tags         []string `json:"tags"`
	TextSearch   *string  `json:"text_search"`
	TouchedSince *string  `json:"touched_since"`
}

func (p *listTasksParams) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Status, validation.In(statusNames...)),
		validation.Field(&p.TouchedSince, validation.Date(models.DateLayout)),
	)
}

// filter converts validated params into a task filter.
func (p *listTasksParams) filter() models.TaskFilter {
	f := models.TaskFilter{Tags: p.Tags, TextSearch: p.TextSearch}
	if p.Status != nil {
		st := models.TaskStatus(*p.Status)
		f.Status = &st
	}
	if p.TouchedSince != nil {
		if d, err := models.ParseDate(*p.TouchedSince); err == nil {
			f.TouchedSince = &d
		}
	}
	return f
}

type taskParams struct {
	TaskID string `json:"task_id"`
}

func (p *taskParams) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.TaskID, validation.Required),
	)
}

type tagParams struct {
	Tag string `json:"tag"`
}

func (p *tagParams) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Tag, validation.Required),
	)
}

type rangeParams struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (p *rangeParams) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Start, validation.Required, validation.Date(models.DateLayout)),
		validation.Field(&p.End, validation.Required, validation.Date(models.DateLayout)),
	)
}

func (p *rangeParams) dateRange() models.DateRange {
	start, _ := models.ParseDate(p.Start)
	end, _ := models.ParseDate(p.End)
	return models.DateRange{Start: start, End: end}
}

type dateParams struct {
	Date string `json:"date"`
}

func (p *dateParams) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Date, validation.Required, validation.Date(models.DateLayout)),
	)
}

type noteParams struct {
	NoteID string `json:"note_id"`
}

func (p *noteParams) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.NoteID, validation.Required),
	)
}

type writeNoteParams struct {
	NoteID  string  `json:"note_id"`
	Content *string `json:"content"`
	IfMatch string  `json:"if_match"`
}

func (p *writeNoteParams) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.NoteID, validation.Required),
		validation.Field(&p.Content, validation.NotNil),
	)
}
