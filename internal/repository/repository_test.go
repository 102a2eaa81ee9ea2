package repository

import (
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"

	"github.com/quocanhngo/tripzi/internal/model"
)

func TestSortForDisplay(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := func(id string, at time.Time) *model.Message {
		return &model.Message{ID: id, CreatedAt: at}
	}

	msgs := []*model.Message{
		msg("pending-1", time.Time{}),
		msg("c", base.Add(2*time.Second)),
		msg("a", base),
		msg("pending-2", time.Time{}),
		msg("b", base.Add(time.Second)),
	}
	SortForDisplay(msgs)

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "pending-1", "pending-2"}, ids)
}

func TestMemberFlagUpdate(t *testing.T) {
	on := memberFlagUpdate("mutedBy", "an", true)
	assert.Equal(t, "mutedBy", on.Path)
	assert.Equal(t, firestore.ArrayUnion("an"), on.Value)

	off := memberFlagUpdate("pinnedBy", "an", false)
	assert.Equal(t, "pinnedBy", off.Path)
	assert.Equal(t, firestore.ArrayRemove("an"), off.Value)
}
