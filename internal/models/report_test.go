package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftUpdate_Builders(t *testing.T) {
	u := NewDraftUpdate().
		WithStage(StageReviewing).
		WithLocation(Location{Latitude: 35.17, Longitude: 33.36}).
		WithPair("Damage", "Road").
		WithPendingCategory("").
		WithDescription("Pothole", DescriptionFromUser).
		WithMedia(MediaPhoto, "photo/1/a.jpg")

	require.NotNil(t, u.Stage)
	assert.Equal(t, StageReviewing, *u.Stage)
	assert.Equal(t, 35.17, u.Location.Latitude)
	assert.Equal(t, "Damage", *u.Category)
	assert.Equal(t, "Road", *u.Subcategory)
	require.NotNil(t, u.PendingCategory, "an empty pending category is an explicit reset")
	assert.Equal(t, "", *u.PendingCategory)
	assert.Equal(t, "Pothole", *u.Description)
	assert.Equal(t, DescriptionFromUser, *u.DescriptionSource)
	assert.Equal(t, MediaPhoto, *u.MediaKind)
	assert.Equal(t, "photo/1/a.jpg", *u.MediaRef)
	assert.Nil(t, u.ExpectRevision)
	assert.Nil(t, u.ExpectDraftID)
}

func TestDraftUpdate_ExpectingDraft(t *testing.T) {
	d := &ReportDraft{DraftID: "d-1", Revision: 4}

	u := NewDraftUpdate().ExpectingDraft(d)
	require.NotNil(t, u.ExpectRevision)
	require.NotNil(t, u.ExpectDraftID)
	assert.Equal(t, int64(4), *u.ExpectRevision)
	assert.Equal(t, "d-1", *u.ExpectDraftID)

	d.Revision = 5
	assert.Equal(t, int64(4), *u.ExpectRevision, "the expectation is a snapshot")

	absent := NewDraftUpdate().ExpectingDraft(nil)
	require.NotNil(t, absent.ExpectRevision)
	assert.Equal(t, int64(0), *absent.ExpectRevision)
	assert.Nil(t, absent.ExpectDraftID)
}
