package kanban

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/user"
)

// Priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Columns
const (
	ColumnTodo  = "todo"
	ColumnDoing = "doing"
	ColumnDone  = "done"
)

// Contributor roles
const (
	RoleAdvisor = "Asesor"
	RoleStudent = "Estudiante"
)

var Columns = []Column{
	{ID: ColumnTodo, Label: "Por hacer"},
	{ID: ColumnDoing, Label: "En progreso"},
	{ID: ColumnDone, Label: "Hecho"},
}

type Column struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func IsValidColumn(col string) bool {
	for _, c := range Columns {
		if c.ID == col {
			return true
		}
	}
	return false
}

// Task is a card of the board. Status is the column it sits in, Position its rank within that column.
type Task struct {
	ID          string       `json:"id" db:"id"`
	Title       string       `json:"title" db:"title"`
	Priority    string       `json:"priority" db:"priority"`
	Status      string       `json:"status" db:"status"`
	Position    int          `json:"position" db:"position"`
	StudentID   string       `json:"student_id" db:"student_id"`
	Creator     string       `json:"creator" db:"creator"`
	Assignee    string       `json:"assignee" db:"assignee"`
	Comments    []Comment    `json:"comments" db:"-"`
	Attachments []Attachment `json:"attachments" db:"-"`
	Date        time.Time    `json:"date" db:"date"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

type Comment struct {
	ID     string    `json:"id" db:"id"`
	Text   string    `json:"text" db:"text"`
	Author string    `json:"author" db:"author"`
	Role   string    `json:"role" db:"role"`
	Date   time.Time `json:"date" db:"date"`
}

// Attachment holds file metadata only.
type Attachment struct {
	ID     string    `json:"id" db:"id"`
	Name   string    `json:"name" db:"name"`
	Size   string    `json:"size" db:"size"` // "1.25 MB"
	Type   string    `json:"type" db:"type"`
	Author string    `json:"author" db:"author"`
	Role   string    `json:"role" db:"role"`
	Date   time.Time `json:"date" db:"date"`
}

// Contribution is a comment or an attachment.
type Contribution struct {
	Kind   string    `json:"kind"` // comment | attachment
	Author string    `json:"author"`
	Role   string    `json:"role"`
	Date   time.Time `json:"date"`
}

// LastContribution returns the most recent comment or attachment of t.
func LastContribution(t Task) (Contribution, bool) {
	var (
		last  Contribution
		found bool
	)
	for _, c := range t.Comments {
		if !found || c.Date.After(last.Date) {
			last, found = Contribution{Kind: "comment", Author: c.Author, Role: c.Role, Date: c.Date}, true
		}
	}
	for _, a := range t.Attachments {
		if !found || a.Date.After(last.Date) {
			last, found = Contribution{Kind: "attachment", Author: a.Author, Role: a.Role, Date: a.Date}, true
		}
	}
	return last, found
}

// FormatSize renders a byte count the way attachments display it.
func FormatSize(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
}

func contributorRole(usr user.User) string {
	if usr.IsAdvisor() {
		return RoleAdvisor
	}
	return RoleStudent
}

func firstName(name string) string {
	if words := strings.Fields(name); len(words) > 0 {
		return words[0]
	}
	return name
}

type NewComment struct {
	Text string `json:"text" validate:"required"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.Text = core.CleanString(nc.Text)
	return validate.Struct(nc)
}

type NewAttachment struct {
	Name      string `json:"name" validate:"required,max=255"`
	SizeBytes int64  `json:"size_bytes" validate:"gte=0"`
	Type      string `json:"type" validate:"omitempty,max=32"`
}

func (na *NewAttachment) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Type = core.CleanString(na.Type, true /* lower */)
	if na.Type == "" {
		na.Type = "pdf"
	}
	return validate.Struct(na)
}

// NewTask contains information needed to create a Task.
// Comments and Attachments are the ones buffered while the task was being drafted.
type NewTask struct {
	Title       string          `json:"title" validate:"required,max=255"`
	Priority    string          `json:"priority" validate:"omitempty,oneof=low medium high"`
	Column      string          `json:"column" validate:"omitempty,oneof=todo doing done"`
	StudentID   string          `json:"student_id"`
	Comments    []NewComment    `json:"comments" validate:"dive"`
	Attachments []NewAttachment `json:"attachments" validate:"dive"`
}

func (nt *NewTask) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Priority = core.CleanString(nt.Priority, true /* lower */)
	nt.Column = core.CleanString(nt.Column, true /* lower */)
	nt.StudentID = core.CleanString(nt.StudentID)
	if nt.Priority == "" {
		nt.Priority = PriorityMedium
	}
	if nt.Column == "" {
		nt.Column = ColumnTodo
	}

	comments := nt.Comments[:0]
	for _, c := range nt.Comments {
		if c.Text = core.CleanString(c.Text); c.Text != "" {
			comments = append(comments, c)
		}
	}
	nt.Comments = comments
	for i := range nt.Attachments {
		if err := nt.Attachments[i].Validate(validate); err != nil {
			return err
		}
	}
	return validate.Struct(nt)
}

// UpdateTask defines what may change on a Task. Empty fields keep their current value.
type UpdateTask struct {
	Title     string `json:"title" validate:"omitempty,max=255"`
	Priority  string `json:"priority" validate:"omitempty,oneof=low medium high"`
	StudentID string `json:"student_id"` // advisors only
}

func (ut *UpdateTask) Validate(validate *validator.Validate) error {
	ut.Title = core.CleanString(ut.Title)
	ut.Priority = core.CleanString(ut.Priority, true /* lower */)
	ut.StudentID = core.CleanString(ut.StudentID)
	return validate.Struct(ut)
}

type MoveTask struct {
	Column   string `json:"column" validate:"required,oneof=todo doing done"`
	BeforeID string `json:"before_id"` // the card to insert before; appended when empty
}

func (mt *MoveTask) Validate(validate *validator.Validate) error {
	mt.Column = core.CleanString(mt.Column, true /* lower */)
	mt.BeforeID = core.CleanString(mt.BeforeID)
	return validate.Struct(mt)
}

// QueryFilter selects tasks whose StudentID is one of StudentIDs or whose Creator is CreatorID.
// An empty filter selects every task.
type QueryFilter struct {
	StudentIDs []string
	CreatorID  string
}

func (qf QueryFilter) IsEmpty() bool {
	return len(qf.StudentIDs) == 0 && qf.CreatorID == ""
}

func (qf QueryFilter) Match(t Task) bool {
	if qf.IsEmpty() {
		return true
	}
	if qf.CreatorID != "" && t.Creator == qf.CreatorID {
		return true
	}
	for _, id := range qf.StudentIDs {
		if t.StudentID == id {
			return true
		}
	}
	return false
}

type BoardColumn struct {
	Column
	Tasks []Task `json:"tasks"`
}

type Board struct {
	Columns []BoardColumn `json:"columns"`
}

// NewBoard groups tasks by column, each column ordered by position.
// Tasks must come sorted by position.
func NewBoard(tasks []Task) Board {
	board := Board{Columns: make([]BoardColumn, len(Columns))}
	idx := make(map[string]int, len(Columns))
	for i, col := range Columns {
		board.Columns[i] = BoardColumn{Column: col, Tasks: []Task{}}
		idx[col.ID] = i
	}
	for _, t := range tasks {
		if i, ok := idx[t.Status]; ok {
			board.Columns[i].Tasks = append(board.Columns[i].Tasks, t)
		}
	}
	return board
}
