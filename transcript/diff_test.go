package transcript

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	serr "github.com/randalmurphal/scribe/errors"
)

func TestCompare(t *testing.T) {
	mgr, db := newTestManager(t)
	ctx := context.Background()
	jobID := addJob(t, db, "completed")

	v1, err := mgr.Save(ctx, jobID, "en", "", []Segment{
		{Start: 0, End: 2, Text: "Hello world."},
		{Start: 2, End: 4, Text: "Goodbye."},
	})
	require.NoError(t, err)
	_, err = mgr.Update(ctx, v1.ID, "", []Segment{
		{Start: 0, End: 2, Text: "Hello world."},
		{Start: 2, End: 4, Text: "Goodbye for now."},
		{Start: 4, End: 6, Text: "See you soon."},
	}, "editor", "")
	require.NoError(t, err)

	cmp, err := mgr.Compare(ctx, v1.ID, 1, 2)
	require.NoError(t, err)

	require.Equal(t, 1, cmp.OldVersion)
	require.Equal(t, 2, cmp.NewVersion)

	require.Equal(t, 5, cmp.Text.WordDelta, "three words grew to eight")
	require.Positive(t, cmp.Text.CharDelta)

	require.Equal(t, 2, cmp.Segments.OldCount)
	require.Equal(t, 3, cmp.Segments.NewCount)
	require.Equal(t, 1, cmp.Segments.CountDelta)
	require.Equal(t, 4.0, cmp.Segments.OldDuration)
	require.Equal(t, 6.0, cmp.Segments.NewDuration)
	require.Equal(t, 2.0, cmp.Segments.DurationDelta)
	require.Equal(t, 1, cmp.Segments.Matched, "only the untouched segment matches")
	require.InDelta(t, 33.33, cmp.Segments.Similarity, 0.01)
}

func TestCompareIdenticalVersions(t *testing.T) {
	mgr, db := newTestManager(t)
	ctx := context.Background()
	jobID := addJob(t, db, "completed")

	v1, err := mgr.Save(ctx, jobID, "en", "", sampleSegments)
	require.NoError(t, err)
	_, err = mgr.Update(ctx, v1.ID, "", sampleSegments, "editor", "no-op edit")
	require.NoError(t, err)

	cmp, err := mgr.Compare(ctx, v1.ID, 1, 2)
	require.NoError(t, err)
	require.Zero(t, cmp.Text.CharDelta)
	require.Zero(t, cmp.Segments.CountDelta)
	require.Zero(t, cmp.Segments.DurationDelta)
	require.Equal(t, 100.0, cmp.Segments.Similarity)
}

func TestCompareValidation(t *testing.T) {
	mgr, db := newTestManager(t)
	ctx := context.Background()
	jobID := addJob(t, db, "completed")

	v1, err := mgr.Save(ctx, jobID, "en", "", sampleSegments)
	require.NoError(t, err)

	_, err = mgr.Compare(ctx, v1.ID, 0, 1)
	require.True(t, serr.IsValidation(err))
	_, err = mgr.Compare(ctx, v1.ID, 1, 7)
	require.True(t, serr.IsNotFound(err))
}

func TestHistoryDeltas(t *testing.T) {
	mgr, db := newTestManager(t)
	ctx := context.Background()
	jobID := addJob(t, db, "completed")

	v1, err := mgr.Save(ctx, jobID, "en", "", []Segment{
		{Start: 0, End: 2, Text: "Short."},
	})
	require.NoError(t, err)
	_, err = mgr.Update(ctx, v1.ID, "", []Segment{
		{Start: 0, End: 2, Text: "Short."},
		{Start: 2, End: 4, Text: "Now a bit longer."},
	}, "editor", "expanded")
	require.NoError(t, err)

	_, err = mgr.RecordExport(ctx, v1.ID, 2, "srt", "/exports/short.srt", "editor")
	require.NoError(t, err)

	history, err := mgr.History(ctx, v1.ID)
	require.NoError(t, err)
	require.Equal(t, v1.ID, history.TranscriptID)
	require.Len(t, history.Entries, 2)

	require.Equal(t, 1, history.Entries[0].Version)
	require.Zero(t, history.Entries[0].CharDelta, "first version has nothing to diff against")
	require.False(t, history.Entries[0].IsCurrent)

	require.Equal(t, 2, history.Entries[1].Version)
	require.Equal(t, 1, history.Entries[1].SegmentDelta)
	require.Positive(t, history.Entries[1].CharDelta)
	require.True(t, history.Entries[1].IsCurrent)
	require.Equal(t, "expanded", history.Entries[1].ChangeNote)

	require.Len(t, history.Exports, 1)
	require.Equal(t, "srt", history.Exports[0].Format)
	require.Equal(t, "/exports/short.srt", history.Exports[0].OutputPath)

	_, err = mgr.History(ctx, 9999)
	require.True(t, serr.IsNotFound(err))
}
