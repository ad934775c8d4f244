package roomsync

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"chatroom-service/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		draft := sl.Current().Interface().(models.Draft)
		if strings.TrimSpace(draft.Text) == "" && len(draft.Attachments) == 0 {
			sl.ReportError(draft.Text, "Text", "text", "text_or_attachments", "")
		}
	}, models.Draft{})
	return v
}

// ValidateDraft rejects a draft whose trimmed text and attachment list are both empty.
func ValidateDraft(draft models.Draft) error {
	if err := validate.Struct(draft); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return ErrValidationFailed
		}
		return err
	}
	return nil
}

// Composer is the composition buffer of one editing session.
type Composer struct {
	mu    sync.Mutex
	draft models.Draft
}

// NewComposer returns a composer holding an empty draft.
func NewComposer() *Composer {
	return &Composer{draft: emptyDraft()}
}

// Draft returns a copy of the current draft.
func (c *Composer) Draft() models.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyDraft(c.draft)
}

// Update merges the non-nil fields of patch into the draft.
func (c *Composer) Update(patch models.DraftPatch) models.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	if patch.Text != nil {
		c.draft.Text = *patch.Text
	}
	if patch.Attachments != nil {
		c.draft.Attachments = append([]string{}, patch.Attachments...)
	}
	return copyDraft(c.draft)
}

// RemoveAttachment drops the first occurrence of ref. Unknown refs are ignored.
func (c *Composer) RemoveAttachment(ref string) models.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := lo.IndexOf(c.draft.Attachments, ref); i >= 0 {
		next := make([]string, 0, len(c.draft.Attachments)-1)
		next = append(next, c.draft.Attachments[:i]...)
		c.draft.Attachments = append(next, c.draft.Attachments[i+1:]...)
	}
	return copyDraft(c.draft)
}

// flush validates the draft and, when it passes, hands it out and resets the buffer.
// A rejected draft stays in place.
func (c *Composer) flush() (models.Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ValidateDraft(c.draft); err != nil {
		return models.Draft{}, err
	}
	out := copyDraft(c.draft)
	c.draft = emptyDraft()
	return out, nil
}

func emptyDraft() models.Draft {
	return models.Draft{Text: "", Attachments: []string{}}
}

func copyDraft(d models.Draft) models.Draft {
	attachments := make([]string, len(d.Attachments))
	copy(attachments, d.Attachments)
	return models.Draft{Text: d.Text, Attachments: attachments}
}
