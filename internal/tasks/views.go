package tasks

import (
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// View selects the response shape for a route.
type View int

const (
	ViewList View = iota
	ViewCreate
	ViewRetrieve
	ViewUpdate
	ViewDelete
)

const (
	createdAtLayout = "2006-01-02 15:04:05"
	previewLen      = 50
	recentWindow    = 24 * time.Hour
)

type listItem struct {
	ID                 int64  `json:"id"`
	Title              string `json:"title"`
	CreatedAt          string `json:"created_at"`
	DescriptionPreview string `json:"description_preview"`
}

type taskOut struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	CreatedAt    string `json:"created_at"`
	Owner        string `json:"owner"`
	OwnerDisplay string `json:"owner_display"`
}

type taskDetail struct {
	taskOut
	WordCount  int    `json:"word_count"`
	IsRecent   bool   `json:"is_recent"`
	CreatedAgo string `json:"created_ago"`
}

// renderer shapes tasks for one view. ownerName is the display name of the
// authenticated owner, who is the only party that ever sees a task.
type renderer struct {
	view      View
	ownerName string
	now       time.Time
}

func (r renderer) one(t Task) any {
	switch r.view {
	case ViewList:
		return listItem{
			ID:                 t.ID,
			Title:              t.Title,
			CreatedAt:          formatCreatedAt(t.CreatedAt),
			DescriptionPreview: descriptionPreview(t.Description),
		}
	case ViewRetrieve:
		return taskDetail{
			taskOut:    r.full(t),
			WordCount:  wordCount(t),
			IsRecent:   r.now.Sub(t.CreatedAt) < recentWindow,
			CreatedAgo: humanize.RelTime(t.CreatedAt, r.now, "ago", "from now"),
		}
	case ViewDelete:
		return nil
	default:
		return r.full(t)
	}
}

// status is the success code for the view's route.
func (r renderer) status() int {
	switch r.view {
	case ViewCreate:
		return http.StatusCreated
	case ViewDelete:
		return http.StatusNoContent
	default:
		return http.StatusOK
	}
}

func (r renderer) many(ts []Task) []any {
	out := make([]any, 0, len(ts))
	for _, t := range ts {
		out = append(out, r.one(t))
	}
	return out
}

func (r renderer) full(t Task) taskOut {
	display := r.ownerName
	if display == "" {
		display = t.Owner
	}
	return taskOut{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		CreatedAt:    formatCreatedAt(t.CreatedAt),
		Owner:        t.Owner,
		OwnerDisplay: display,
	}
}

func formatCreatedAt(t time.Time) string {
	return t.UTC().Format(createdAtLayout)
}

func descriptionPreview(d string) string {
	rs := []rune(d)
	if len(rs) > previewLen {
		return string(rs[:previewLen]) + "..."
	}
	return d
}

func wordCount(t Task) int {
	return len(strings.Fields(t.Title)) + len(strings.Fields(t.Description))
}
