package roomsync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chatroom-service/internal/models"
)

func strPtr(s string) *string { return &s }

func TestComposerUpdateMergesShallowly(t *testing.T) {
	c := NewComposer()

	draft := c.Update(models.DraftPatch{Attachments: []string{"a.png"}})
	require.Equal(t, models.Draft{Text: "", Attachments: []string{"a.png"}}, draft)

	draft = c.Update(models.DraftPatch{Text: strPtr("hello")})
	require.Equal(t, "hello", draft.Text)
	require.Equal(t, []string{"a.png"}, draft.Attachments)

	draft = c.Update(models.DraftPatch{Attachments: []string{}})
	require.Equal(t, "hello", draft.Text)
	require.Empty(t, draft.Attachments)
}

func TestComposerReturnsCopies(t *testing.T) {
	c := NewComposer()
	draft := c.Update(models.DraftPatch{Attachments: []string{"a.png"}})
	draft.Attachments[0] = "mutated"

	require.Equal(t, []string{"a.png"}, c.Draft().Attachments)
}

func TestComposerRemoveAttachmentRemovesFirstOccurrence(t *testing.T) {
	c := NewComposer()
	c.Update(models.DraftPatch{Attachments: []string{"a", "b", "a", "c"}})

	draft := c.RemoveAttachment("a")

	require.Equal(t, []string{"b", "a", "c"}, draft.Attachments)
}

func TestComposerRemoveAbsentAttachmentIsNoop(t *testing.T) {
	c := NewComposer()
	before := c.Update(models.DraftPatch{Text: strPtr("hi"), Attachments: []string{"a", "b"}})

	after := c.RemoveAttachment("zzz")

	require.Equal(t, before, after)
}

func TestValidateDraft(t *testing.T) {
	cases := []struct {
		name    string
		draft   models.Draft
		wantErr bool
	}{
		{name: "empty", draft: models.Draft{}, wantErr: true},
		{name: "whitespace only", draft: models.Draft{Text: "  \n\t"}, wantErr: true},
		{name: "text", draft: models.Draft{Text: "hi"}},
		{name: "attachment only", draft: models.Draft{Attachments: []string{"cat.png"}}},
		{name: "whitespace with attachment", draft: models.Draft{Text: " ", Attachments: []string{"cat.png"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDraft(tc.draft)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrValidationFailed)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestComposerFlushKeepsRejectedDraft(t *testing.T) {
	c := NewComposer()
	c.Update(models.DraftPatch{Text: strPtr("   ")})

	_, err := c.flush()

	require.ErrorIs(t, err, ErrValidationFailed)
	require.Equal(t, "   ", c.Draft().Text)
}

func TestComposerFlushClearsDraft(t *testing.T) {
	c := NewComposer()
	c.Update(models.DraftPatch{Text: strPtr("hi"), Attachments: []string{"a"}})

	out, err := c.flush()

	require.NoError(t, err)
	require.Equal(t, models.Draft{Text: "hi", Attachments: []string{"a"}}, out)
	require.Equal(t, models.Draft{Text: "", Attachments: []string{}}, c.Draft())
}
