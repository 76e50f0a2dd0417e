package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treesurvey/internal/models"
	"treesurvey/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return st
}

func registerImage(t *testing.T, st *Store, id, path string) {
	t.Helper()
	require.NoError(t, st.RegisterImage(context.Background(), &models.Image{ImageID: id, Path: path}))
}

func registerTree(t *testing.T, st *Store, id, treeType string) {
	t.Helper()
	require.NoError(t, st.RegisterTree(context.Background(), &models.Tree{TreeID: id, TreeType: treeType}))
}

func createAnnotation(t *testing.T, st *Store, id, imageID, treeID string) {
	t.Helper()
	require.NoError(t, st.CreateAnnotation(context.Background(), &models.Annotation{
		AnnotationID: id,
		ImageID:      imageID,
		TreeID:       treeID,
		X0:           10, Y0: 10, A: 5, B: 3, Theta: 0,
	}))
}

func f64(v float64) *float64 { return &v }

func TestRegisterImage_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2025, 6, 14, 9, 30, 0, 0, time.UTC)
	camera := "DJI Mavic 3"
	img := &models.Image{
		ImageID:        "img1",
		Path:           "/survey/a.jpg",
		Lat:            f64(55.75),
		Lon:            f64(37.61),
		Timestamp:      &ts,
		FlightAltitude: f64(16),
		CameraModel:    &camera,
		FocalLength:    f64(24),
	}
	require.NoError(t, st.RegisterImage(ctx, img))

	got, err := st.Images.GetByID(ctx, "img1")
	require.NoError(t, err)

	assert.Equal(t, "img1", got.ImageID)
	assert.Equal(t, "/survey/a.jpg", got.Path)
	assert.Equal(t, f64(55.75), got.Lat)
	assert.Equal(t, f64(37.61), got.Lon)
	require.NotNil(t, got.Timestamp)
	assert.WithinDuration(t, ts, *got.Timestamp, time.Second)
	assert.Equal(t, f64(16), got.FlightAltitude)
	assert.Equal(t, &camera, got.CameraModel)
	assert.Equal(t, f64(24), got.FocalLength)
	assert.False(t, got.CreatedAt.IsZero())

	// Derived fields come from the capture timestamp.
	require.NotNil(t, got.DayOfYear)
	assert.Equal(t, ts.YearDay(), *got.DayOfYear)
	require.NotNil(t, got.TimeOfDay)
	assert.Equal(t, "09:30:00", *got.TimeOfDay)
}

func TestRegisterImage_UnsetOptionalFieldsStayNil(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/survey/a.jpg")

	got, err := st.Images.GetByID(ctx, "img1")
	require.NoError(t, err)

	assert.Nil(t, got.Lat)
	assert.Nil(t, got.Lon)
	assert.Nil(t, got.Timestamp)
	assert.Nil(t, got.DayOfYear)
	assert.Nil(t, got.TimeOfDay)
	assert.Nil(t, got.FlightAltitude)
	assert.Nil(t, got.CameraModel)
	assert.Nil(t, got.FocalLength)
}

func TestRegisterImage_DuplicateID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/survey/a.jpg")

	err := st.RegisterImage(ctx, &models.Image{ImageID: "img1", Path: "/survey/b.jpg"})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestRegisterImage_DuplicatePath(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/survey/a.jpg")

	err := st.RegisterImage(ctx, &models.Image{ImageID: "img2", Path: "/survey/a.jpg"})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	// The failed insert must leave no row behind.
	count, err := st.Images.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegisterTree_Duplicate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerTree(t, st, "t1", "oak")

	err := st.RegisterTree(ctx, &models.Tree{TreeID: "t1", TreeType: "pine"})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestCreateAnnotation_Scenario(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/a.jpg")
	registerTree(t, st, "t1", "oak")

	createAnnotation(t, st, "ann1", "img1", "t1")

	// Same pair, different geometry: a conflict, not an update.
	err := st.CreateAnnotation(ctx, &models.Annotation{
		AnnotationID: "ann2",
		ImageID:      "img1",
		TreeID:       "t1",
		X0:           99, Y0: 99, A: 1, B: 1, Theta: 1,
	})
	assert.ErrorIs(t, err, store.ErrDuplicateAnnotation)

	count, err := st.Annotations.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Observation for ann1 derives its tree reference.
	obs := &models.CrownObservation{
		ObsID:        "obs1",
		AnnotationID: "ann1",
		RoiRawPath:   "/roi1.png",
	}
	require.NoError(t, st.CreateObservation(ctx, obs))
	assert.Equal(t, "t1", obs.TreeID)
}

func TestCreateAnnotation_ForeignKeys(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/a.jpg")
	registerTree(t, st, "t1", "oak")

	err := st.CreateAnnotation(ctx, &models.Annotation{
		AnnotationID: "ann1",
		ImageID:      "missing",
		TreeID:       "t1",
		X0:           1, Y0: 1, A: 1, B: 1,
	})
	assert.ErrorIs(t, err, store.ErrForeignKey)

	err = st.CreateAnnotation(ctx, &models.Annotation{
		AnnotationID: "ann1",
		ImageID:      "img1",
		TreeID:       "missing",
		X0:           1, Y0: 1, A: 1, B: 1,
	})
	assert.ErrorIs(t, err, store.ErrForeignKey)

	// No partial rows after failed creates.
	count, err := st.Annotations.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCreateAnnotation_InvalidGeometry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/a.jpg")
	registerTree(t, st, "t1", "oak")

	for _, tc := range []struct{ a, b float64 }{
		{0, 3},
		{5, 0},
		{-5, 3},
		{5, -3},
	} {
		err := st.CreateAnnotation(ctx, &models.Annotation{
			ImageID: "img1",
			TreeID:  "t1",
			X0:      1, Y0: 1, A: tc.a, B: tc.b,
		})
		assert.ErrorIs(t, err, store.ErrInvalidGeometry, "a=%g b=%g", tc.a, tc.b)
	}
}

func TestCreateAnnotation_TreeTypeDerivedFromTree(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/a.jpg")
	registerTree(t, st, "t1", "oak")

	ann := &models.Annotation{
		AnnotationID: "ann1",
		ImageID:      "img1",
		TreeID:       "t1",
		TreeType:     "spruce", // lies; the store copies from the parent row
		X0:           1, Y0: 1, A: 2, B: 2,
	}
	require.NoError(t, st.CreateAnnotation(ctx, ann))

	got, err := st.Annotations.GetByID(ctx, "ann1")
	require.NoError(t, err)
	assert.Equal(t, "oak", got.TreeType)
}

func TestCreateObservation_DerivesParentReferences(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/a.jpg")
	registerTree(t, st, "t1", "oak")
	createAnnotation(t, st, "ann1", "img1", "t1")

	// Caller-supplied copies differ from the annotation; they must be
	// overwritten, never trusted.
	obs := &models.CrownObservation{
		ObsID:        "obs1",
		AnnotationID: "ann1",
		ImageID:      "bogus-image",
		TreeID:       "bogus-tree",
		RoiRawPath:   "/roi1.png",
	}
	require.NoError(t, st.CreateObservation(ctx, obs))

	got, err := st.Observations.GetByID(ctx, "obs1")
	require.NoError(t, err)
	assert.Equal(t, "img1", got.ImageID)
	assert.Equal(t, "t1", got.TreeID)
}

func TestCreateObservation_MissingAnnotation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.CreateObservation(ctx, &models.CrownObservation{
		AnnotationID: "missing",
		RoiRawPath:   "/roi.png",
	})
	assert.ErrorIs(t, err, store.ErrForeignKey)

	count, err := st.Observations.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCreateObservation_RequiresRoiPath(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/a.jpg")
	registerTree(t, st, "t1", "oak")
	createAnnotation(t, st, "ann1", "img1", "t1")

	err := st.CreateObservation(ctx, &models.CrownObservation{AnnotationID: "ann1"})
	assert.Error(t, err)
}

func TestCreateObservation_MultiplePerAnnotation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/a.jpg")
	registerTree(t, st, "t1", "oak")
	createAnnotation(t, st, "ann1", "img1", "t1")

	features := `{"ellipse_area":47.1}`
	for i, id := range []string{"obs1", "obs2", "obs3"} {
		obs := &models.CrownObservation{
			ObsID:        id,
			AnnotationID: "ann1",
			RoiRawPath:   "/roi.png",
			ObsHeight:    f64(float64(i)),
			FeaturesJSON: &features,
		}
		require.NoError(t, st.CreateObservation(ctx, obs))
	}

	got, err := st.Observations.ListByAnnotation(ctx, "ann1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"obs1", "obs2", "obs3"},
		[]string{got[0].ObsID, got[1].ObsID, got[2].ObsID})
	assert.Equal(t, &features, got[0].FeaturesJSON)
}

func TestLookupByTree(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerTree(t, st, "t1", "oak")
	registerImage(t, st, "img1", "/a.jpg")
	registerImage(t, st, "img2", "/b.jpg")
	createAnnotation(t, st, "ann1", "img1", "t1")
	createAnnotation(t, st, "ann2", "img2", "t1")

	require.NoError(t, st.CreateObservation(ctx, &models.CrownObservation{
		ObsID: "obs1", AnnotationID: "ann1", RoiRawPath: "/roi1.png",
	}))

	survey, err := st.LookupByTree(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", survey.Tree.TreeID)
	require.Len(t, survey.Annotations, 2)
	// Insertion order, ascending.
	assert.Equal(t, "ann1", survey.Annotations[0].AnnotationID)
	assert.Equal(t, "ann2", survey.Annotations[1].AnnotationID)
	require.Len(t, survey.Observations, 1)
	assert.Equal(t, "obs1", survey.Observations[0].ObsID)
}

func TestLookupByTree_NotFoundVsEmpty(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.LookupByTree(ctx, "never-registered")
	assert.ErrorIs(t, err, store.ErrNotFound)

	registerTree(t, st, "t1", "oak")

	survey, err := st.LookupByTree(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, survey.Annotations)
	assert.Empty(t, survey.Observations)
}

func TestLookupByImage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.LookupByImage(ctx, "never-registered")
	assert.ErrorIs(t, err, store.ErrNotFound)

	registerImage(t, st, "img1", "/a.jpg")
	registerTree(t, st, "t1", "oak")
	registerTree(t, st, "t2", "pine")
	createAnnotation(t, st, "ann1", "img1", "t1")
	createAnnotation(t, st, "ann2", "img1", "t2")

	survey, err := st.LookupByImage(ctx, "img1")
	require.NoError(t, err)
	assert.Equal(t, "/a.jpg", survey.Image.Path)
	require.Len(t, survey.Annotations, 2)
	assert.Equal(t, "ann1", survey.Annotations[0].AnnotationID)
	assert.Equal(t, "ann2", survey.Annotations[1].AnnotationID)
}

func TestConcurrentAnnotation_SamePair(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/a.jpg")
	registerTree(t, st, "t1", "oak")

	const writers = 8
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = st.CreateAnnotation(ctx, &models.Annotation{
				ImageID: "img1",
				TreeID:  "t1",
				X0:      float64(idx), Y0: 1, A: 2, B: 2,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, store.ErrDuplicateAnnotation)
		}
	}
	assert.Equal(t, 1, succeeded)

	count, err := st.Annotations.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/a.jpg")
	registerTree(t, st, "t1", "oak")
	createAnnotation(t, st, "ann1", "img1", "t1")
	require.NoError(t, st.CreateObservation(ctx, &models.CrownObservation{
		AnnotationID: "ann1", RoiRawPath: "/roi.png",
	}))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalImages)
	assert.Equal(t, 1, stats.TotalTrees)
	assert.Equal(t, 1, stats.TotalAnnotations)
	assert.Equal(t, 1, stats.TotalObservations)
}

func TestBackfillHeights(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.RegisterImage(ctx, &models.Image{
		ImageID: "img1", Path: "/a.jpg", FlightAltitude: f64(16),
	}))
	registerImage(t, st, "img2", "/b.jpg") // no altitude
	registerTree(t, st, "t1", "oak")
	registerTree(t, st, "t2", "pine")
	createAnnotation(t, st, "ann1", "img1", "t1")
	createAnnotation(t, st, "ann2", "img2", "t2")

	require.NoError(t, st.CreateObservation(ctx, &models.CrownObservation{
		ObsID: "obs1", AnnotationID: "ann1", RoiRawPath: "/roi1.png",
	}))
	require.NoError(t, st.CreateObservation(ctx, &models.CrownObservation{
		ObsID: "obs2", AnnotationID: "ann2", RoiRawPath: "/roi2.png",
	}))
	require.NoError(t, st.CreateObservation(ctx, &models.CrownObservation{
		ObsID: "obs3", AnnotationID: "ann1", RoiRawPath: "/roi3.png", ObsHeight: f64(7),
	}))

	updated, err := st.Observations.BackfillHeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	obs1, err := st.Observations.GetByID(ctx, "obs1")
	require.NoError(t, err)
	require.NotNil(t, obs1.ObsHeight)
	assert.Equal(t, 16.0, *obs1.ObsHeight)

	// Image without altitude: untouched.
	obs2, err := st.Observations.GetByID(ctx, "obs2")
	require.NoError(t, err)
	assert.Nil(t, obs2.ObsHeight)

	// Already-set heights are never overwritten.
	obs3, err := st.Observations.GetByID(ctx, "obs3")
	require.NoError(t, err)
	assert.Equal(t, 7.0, *obs3.ObsHeight)
}

func TestSetFlightAltitude(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerImage(t, st, "img1", "/a.jpg")

	require.NoError(t, st.Images.SetFlightAltitude(ctx, "img1", 12.5))
	got, err := st.Images.GetByID(ctx, "img1")
	require.NoError(t, err)
	require.NotNil(t, got.FlightAltitude)
	assert.Equal(t, 12.5, *got.FlightAltitude)

	err = st.Images.SetFlightAltitude(ctx, "missing", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
