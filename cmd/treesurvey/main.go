package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"treesurvey/internal/config"
	"treesurvey/internal/ingest"
	"treesurvey/internal/logger"
	"treesurvey/internal/models"
	"treesurvey/internal/store/sqlite"
)

func main() {
	cfgPath := flag.String("config", filepath.Join("configs", "config.yaml"), "Path to YAML config")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg := logger.NewLogger(cfg.Logging.LogDir, cfg.Logging.Level)

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.DBPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	st, err := sqlite.Open(cfg.Paths.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	args := flag.Args()[1:]

	switch cmd := flag.Arg(0); cmd {
	case "init":
		// Schema is applied on open.
		fmt.Printf("Database ready: %s\n", cfg.Paths.DBPath)

	case "import":
		runImport(ctx, st, lg, cfg, args)

	case "register-tree":
		runRegisterTree(ctx, st, args)

	case "annotate":
		runAnnotate(ctx, st, args)

	case "observe":
		runObserve(ctx, st, args)

	case "list-images":
		runListImages(ctx, st, cfg.ListLimit)

	case "list-annotations":
		runListAnnotations(ctx, st, cfg.ListLimit)

	case "list-observations":
		runListObservations(ctx, st, cfg.ListLimit)

	case "tree":
		runLookupTree(ctx, st, args)

	case "image":
		runLookupImage(ctx, st, args)

	case "stats":
		runStats(ctx, st)

	case "fill-altitude":
		updated, err := ingest.FillFlightAltitudes(ctx, st.Images, lg)
		if err != nil {
			log.Fatalf("Failed to fill flight altitudes: %v", err)
		}
		fmt.Printf("Updated flight_altitude on %d images\n", updated)

	case "backfill-heights":
		updated, err := st.Observations.BackfillHeights(ctx)
		if err != nil {
			log.Fatalf("Failed to backfill observation heights: %v", err)
		}
		fmt.Printf("Backfilled obs_height on %d observations\n", updated)

	case "heights":
		runHeights(ctx, st, cfg.ListLimit)

	case "dedupe":
		deleted, err := st.Maintenance.DeduplicateAnnotations(ctx)
		if err != nil {
			log.Fatalf("Failed to deduplicate annotations: %v", err)
		}
		fmt.Printf("Removed %d duplicate annotations\n", deleted)

	case "cleanup-orphans":
		deleted, err := st.Maintenance.CleanupOrphanObservations(ctx)
		if err != nil {
			log.Fatalf("Failed to clean up orphan observations: %v", err)
		}
		fmt.Printf("Removed %d orphan observations\n", deleted)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: treesurvey [-config path] <command> [flags]

Commands:
  init                 create the database and schema
  import               register images from the raw images directory
  register-tree        register a surveyed tree
  annotate             mark a tree crown in an image with an ellipse
  observe              record a crown observation for an annotation
  list-images          show the most recent images
  list-annotations     show the most recent annotations
  list-observations    show the most recent observations
  tree <tree_id>       show everything recorded for one tree
  image <image_id>     show everything recorded in one image
  stats                show per-table record counts
  fill-altitude        backfill images.flight_altitude from file names
  backfill-heights     copy flight altitude into empty obs_height fields
  heights              summarize altitudes and observation heights
  dedupe               remove duplicate annotations, keeping the newest
  cleanup-orphans      remove observations whose annotation is gone
`)
}

func runImport(ctx context.Context, st *sqlite.Store, lg *logger.Logger, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dir := fs.String("dir", cfg.Paths.RawImagesDir, "Directory to scan for images")
	fs.Parse(args)

	importer := ingest.NewImporter(st, lg)
	added, err := importer.ImportDirectory(ctx, *dir)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	fmt.Printf("Imported %d images from %s\n", added, *dir)
}

func runRegisterTree(ctx context.Context, st *sqlite.Store, args []string) {
	fs := flag.NewFlagSet("register-tree", flag.ExitOnError)
	id := fs.String("id", "", "Tree ID (generated when empty)")
	treeType := fs.String("type", "", "Species or category label (required)")
	lat := fs.Float64("lat", 0, "Latitude")
	lon := fs.Float64("lon", 0, "Longitude")
	height := fs.Float64("height", 0, "Estimated height in meters")
	fs.Parse(args)

	if *treeType == "" {
		log.Fatalf("register-tree: -type is required")
	}

	tree := &models.Tree{
		TreeID:    *id,
		TreeType:  *treeType,
		Lat:       optFloat(fs, "lat", *lat),
		Lon:       optFloat(fs, "lon", *lon),
		HeightEst: optFloat(fs, "height", *height),
	}
	if err := st.RegisterTree(ctx, tree); err != nil {
		log.Fatalf("Failed to register tree: %v", err)
	}
	fmt.Printf("Registered tree %s (%s)\n", tree.TreeID, tree.TreeType)
}

func runAnnotate(ctx context.Context, st *sqlite.Store, args []string) {
	fs := flag.NewFlagSet("annotate", flag.ExitOnError)
	id := fs.String("id", "", "Annotation ID (generated when empty)")
	imageID := fs.String("image", "", "Image ID (required)")
	treeID := fs.String("tree", "", "Tree ID (required)")
	x0 := fs.Float64("x0", 0, "Ellipse center X")
	y0 := fs.Float64("y0", 0, "Ellipse center Y")
	a := fs.Float64("a", 0, "Semi-axis a (must be positive)")
	b := fs.Float64("b", 0, "Semi-axis b (must be positive)")
	theta := fs.Float64("theta", 0, "Rotation in radians")
	quality := fs.Float64("quality", 0, "Optional quality score")
	fs.Parse(args)

	if *imageID == "" || *treeID == "" {
		log.Fatalf("annotate: -image and -tree are required")
	}

	ann := &models.Annotation{
		AnnotationID: *id,
		ImageID:      *imageID,
		TreeID:       *treeID,
		X0:           *x0,
		Y0:           *y0,
		A:            *a,
		B:            *b,
		Theta:        *theta,
		Quality:      optFloat(fs, "quality", *quality),
	}
	if err := st.CreateAnnotation(ctx, ann); err != nil {
		log.Fatalf("Failed to create annotation: %v", err)
	}
	fmt.Printf("Created annotation %s for tree %s in image %s\n", ann.AnnotationID, ann.TreeID, ann.ImageID)
}

func runObserve(ctx context.Context, st *sqlite.Store, args []string) {
	fs := flag.NewFlagSet("observe", flag.ExitOnError)
	id := fs.String("id", "", "Observation ID (generated when empty)")
	annotationID := fs.String("annotation", "", "Annotation ID (required)")
	roi := fs.String("roi", "", "Path to the cropped ROI file (required)")
	height := fs.Float64("height", 0, "Estimated crown height")
	features := fs.String("features", "", "Serialized feature bundle")
	fs.Parse(args)

	if *annotationID == "" || *roi == "" {
		log.Fatalf("observe: -annotation and -roi are required")
	}

	obs := &models.CrownObservation{
		ObsID:        *id,
		AnnotationID: *annotationID,
		RoiRawPath:   *roi,
		ObsHeight:    optFloat(fs, "height", *height),
		FeaturesJSON: optString(fs, "features", *features),
	}
	if err := st.CreateObservation(ctx, obs); err != nil {
		log.Fatalf("Failed to create observation: %v", err)
	}
	fmt.Printf("Created observation %s (tree %s, image %s)\n", obs.ObsID, obs.TreeID, obs.ImageID)
}

func runListImages(ctx context.Context, st *sqlite.Store, limit int) {
	total, err := st.Images.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to count images: %v", err)
	}
	images, err := st.Images.List(ctx, limit)
	if err != nil {
		log.Fatalf("Failed to list images: %v", err)
	}

	fmt.Printf("Total images: %d\n", total)
	for _, img := range images {
		alt := "-"
		if img.FlightAltitude != nil {
			alt = fmt.Sprintf("%.1f", *img.FlightAltitude)
		}
		fmt.Printf("- %s | altitude=%s | %s\n", img.ImageID, alt, img.Path)
	}
}

func runListAnnotations(ctx context.Context, st *sqlite.Store, limit int) {
	total, err := st.Annotations.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to count annotations: %v", err)
	}
	annotations, err := st.Annotations.ListRecent(ctx, limit)
	if err != nil {
		log.Fatalf("Failed to list annotations: %v", err)
	}

	fmt.Printf("Total annotations: %d\n", total)
	for _, ann := range annotations {
		fmt.Printf("- %s | tree=%s (%s) | image=%s\n", ann.AnnotationID, ann.TreeID, ann.TreeType, ann.ImagePath)
		fmt.Printf("  ellipse: x0=%.1f y0=%.1f a=%.1f b=%.1f theta=%.3f\n", ann.X0, ann.Y0, ann.A, ann.B, ann.Theta)
	}
}

func runListObservations(ctx context.Context, st *sqlite.Store, limit int) {
	total, err := st.Observations.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to count observations: %v", err)
	}
	observations, err := st.Observations.ListRecent(ctx, limit)
	if err != nil {
		log.Fatalf("Failed to list observations: %v", err)
	}

	fmt.Printf("Total observations: %d\n", total)
	for _, obs := range observations {
		fmt.Printf("- %s | tree=%s | image=%s | roi=%s\n", obs.ObsID, obs.TreeID, obs.ImagePath, obs.RoiRawPath)
	}
}

func runLookupTree(ctx context.Context, st *sqlite.Store, args []string) {
	if len(args) < 1 {
		log.Fatalf("Usage: treesurvey tree <tree_id>")
	}

	survey, err := st.LookupByTree(ctx, args[0])
	if err != nil {
		log.Fatalf("Lookup failed: %v", err)
	}

	fmt.Printf("Tree %s (%s)\n", survey.Tree.TreeID, survey.Tree.TreeType)
	fmt.Printf("Annotations (%d):\n", len(survey.Annotations))
	for _, ann := range survey.Annotations {
		fmt.Printf("- %s | image=%s | x0=%.1f y0=%.1f a=%.1f b=%.1f\n",
			ann.AnnotationID, ann.ImageID, ann.X0, ann.Y0, ann.A, ann.B)
	}
	fmt.Printf("Observations (%d):\n", len(survey.Observations))
	for _, obs := range survey.Observations {
		fmt.Printf("- %s | annotation=%s | roi=%s\n", obs.ObsID, obs.AnnotationID, obs.RoiRawPath)
	}
}

func runLookupImage(ctx context.Context, st *sqlite.Store, args []string) {
	if len(args) < 1 {
		log.Fatalf("Usage: treesurvey image <image_id>")
	}

	survey, err := st.LookupByImage(ctx, args[0])
	if err != nil {
		log.Fatalf("Lookup failed: %v", err)
	}

	fmt.Printf("Image %s: %s\n", survey.Image.ImageID, survey.Image.Path)
	fmt.Printf("Annotations (%d):\n", len(survey.Annotations))
	for _, ann := range survey.Annotations {
		fmt.Printf("- %s | tree=%s (%s)\n", ann.AnnotationID, ann.TreeID, ann.TreeType)
	}
	fmt.Printf("Observations (%d):\n", len(survey.Observations))
	for _, obs := range survey.Observations {
		fmt.Printf("- %s | tree=%s | roi=%s\n", obs.ObsID, obs.TreeID, obs.RoiRawPath)
	}
}

func runStats(ctx context.Context, st *sqlite.Store) {
	stats, err := st.Stats(ctx)
	if err != nil {
		log.Fatalf("Failed to collect stats: %v", err)
	}

	fmt.Printf("Images:       %d\n", stats.TotalImages)
	fmt.Printf("Trees:        %d\n", stats.TotalTrees)
	fmt.Printf("Annotations:  %d\n", stats.TotalAnnotations)
	fmt.Printf("Observations: %d\n", stats.TotalObservations)
}

func runHeights(ctx context.Context, st *sqlite.Store, limit int) {
	images, err := st.Images.List(ctx, limit)
	if err != nil {
		log.Fatalf("Failed to list images: %v", err)
	}
	observations, err := st.Observations.ListRecent(ctx, limit)
	if err != nil {
		log.Fatalf("Failed to list observations: %v", err)
	}

	fmt.Println("--- IMAGES (flight_altitude) ---")
	for _, img := range images {
		alt := "-"
		if img.FlightAltitude != nil {
			alt = fmt.Sprintf("%.2f", *img.FlightAltitude)
		}
		fmt.Printf("- %s | flight_altitude=%s | %s\n", img.ImageID, alt, img.Path)
	}

	fmt.Println("--- OBSERVATIONS (obs_height) ---")
	for _, obs := range observations {
		h := "-"
		if obs.ObsHeight != nil {
			h = fmt.Sprintf("%.2f", *obs.ObsHeight)
		}
		fmt.Printf("- %s | tree=%s | obs_height=%s\n", obs.ObsID, obs.TreeID, h)
	}
}

// optFloat returns a pointer to v only when the named flag was set.
func optFloat(fs *flag.FlagSet, name string, v float64) *float64 {
	if !flagSet(fs, name) {
		return nil
	}
	return &v
}

// optString returns a pointer to v only when the named flag was set.
func optString(fs *flag.FlagSet, name string, v string) *string {
	if !flagSet(fs, name) {
		return nil
	}
	return &v
}

func flagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
