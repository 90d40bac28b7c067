package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adnitools/foldsplit/split"

	"github.com/dustin/go-humanize"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gopkg.in/yaml.v3"
)

// Flag defaults, shared with the config merge so file values apply only
// where the user left the CLI flag untouched.
const (
	defaultNSplits     = 5
	defaultValFraction = 0.15
	defaultOutDir      = "plots"
)

// fileConfig mirrors the optional JSON or YAML config file. Fields are
// pointers so absent keys are distinguishable from zero values.
type fileConfig struct {
	Split *struct {
		NSplits     *int     `json:"n_splits" yaml:"n_splits"`
		ValFraction *float64 `json:"val_fraction" yaml:"val_fraction"`
		Seed        *int64   `json:"seed" yaml:"seed"`
		Parallel    *bool    `json:"parallel" yaml:"parallel"`
	} `json:"split" yaml:"split"`
	Plot *struct {
		OutDir *string `json:"out_dir" yaml:"out_dir"`
	} `json:"plot" yaml:"plot"`
}

func main() {
	defaultSeed := time.Now().UnixNano()

	mode := flag.String("mode", "split", "one of: split, verify, plot, paths")
	dataFile := flag.String("data", "", "path to the subject/session tsv (columns participant_id, session_id, diagnosis)")
	nSplits := flag.Int("n-splits", defaultNSplits, "number of cross-validation folds")
	valFraction := flag.Float64("val-fraction", defaultValFraction, "fraction of each fold's training pool held out for validation")
	seed := flag.Int64("seed", defaultSeed, "random seed for fold shuffling and holdout draws")
	parallelFolds := flag.Bool("parallel", false, "write fold files concurrently")
	foldIdx := flag.Int("fold", 0, "fold index for -mode paths")
	outDir := flag.String("out", defaultOutDir, "output directory for -mode plot")
	configPath := flag.String("config", "", "optional JSON or YAML config file; explicit CLI flags take precedence")
	flag.Parse()

	// Merge config file values into flags that were left at their defaults,
	// so explicit CLI flags always override the file.
	if *configPath != "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config %s: %v", *configPath, err)
		}
		if cfg.Split != nil {
			if cfg.Split.NSplits != nil && *nSplits == defaultNSplits {
				*nSplits = *cfg.Split.NSplits
			}
			if cfg.Split.ValFraction != nil && *valFraction == defaultValFraction {
				*valFraction = *cfg.Split.ValFraction
			}
			if cfg.Split.Seed != nil && *seed == defaultSeed {
				*seed = *cfg.Split.Seed
			}
			if cfg.Split.Parallel != nil && !*parallelFolds {
				*parallelFolds = *cfg.Split.Parallel
			}
		}
		if cfg.Plot != nil && cfg.Plot.OutDir != nil && *outDir == defaultOutDir {
			*outDir = *cfg.Plot.OutDir
		}
		log.Printf("Loaded config from %s", *configPath)
	}

	if *dataFile == "" {
		log.Fatalf("missing -data: path to the subject/session tsv is required")
	}

	switch *mode {
	case "split":
		runSplit(*dataFile, *nSplits, *valFraction, *seed, *parallelFolds)
	case "paths":
		runPaths(*dataFile, *foldIdx)
	case "verify":
		runVerify(*dataFile, *nSplits)
	case "plot":
		runPlot(*dataFile, *nSplits, *outDir)
	default:
		log.Fatalf("unknown mode %q (want split, verify, plot or paths)", *mode)
	}
}

// loadConfig reads a JSON or YAML config file, picking the format from the
// file extension.
func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &fileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
	}
	return cfg, nil
}

// runSplit computes the stratified folds and writes the fifteen-odd split
// files next to the source table.
func runSplit(dataFile string, nSplits int, valFraction float64, seed int64, parallel bool) {
	tbl, err := split.ReadTable(dataFile)
	if err != nil {
		log.Fatalf("failed to read %s: %v", dataFile, err)
	}
	reduced, err := split.Reduce(tbl)
	if err != nil {
		log.Fatalf("failed to reduce subjects: %v", err)
	}
	log.Printf("Loaded %s sessions (%s subjects) from %s",
		humanize.Comma(int64(tbl.Len())), humanize.Comma(int64(reduced.Len())), dataFile)

	sp, err := split.NewSplitter(nSplits, valFraction, seed)
	if err != nil {
		log.Fatalf("invalid split parameters: %v", err)
	}
	sp.Parallel = parallel

	start := time.Now()
	if err := sp.WriteFolds(tbl, dataFile); err != nil {
		log.Fatalf("split failed: %v", err)
	}
	log.Printf("Wrote %d split files in %v (n-splits=%d val-fraction=%v seed=%d)",
		3*nSplits, time.Since(start).Round(time.Millisecond), nSplits, valFraction, seed)
}

// runPaths prints the three split file paths of one fold, one per line in
// train, test, valid order.
func runPaths(dataFile string, fold int) {
	train, test, valid := split.SplitPaths(dataFile, fold)
	fmt.Println(train)
	fmt.Println(test)
	fmt.Println(valid)
}

// runVerify reloads previously written split files and checks the invariants
// the splitter promises: sides of a fold are subject-disjoint and cover all
// subjects, test folds partition the subjects, and per-diagnosis test counts
// stay within one subject of an even share.
func runVerify(dataFile string, nSplits int) {
	labelOf, labels, totals, err := baselineIndex(dataFile)
	if err != nil {
		log.Fatalf("failed to index %s: %v", dataFile, err)
	}
	log.Printf("Verifying %d folds against %s subjects", nSplits, humanize.Comma(int64(len(labelOf))))

	violations := 0
	testSeen := make(map[string]int)
	var deviations []float64
	for k := 0; k < nSplits; k++ {
		trainPath, testPath, validPath := split.SplitPaths(dataFile, k)

		side := make(map[string]string)
		roles := []struct {
			name string
			path string
		}{
			{split.RoleTrain, trainPath},
			{split.RoleValid, validPath},
			{split.RoleTest, testPath},
		}
		var testSubs []string
		for _, role := range roles {
			subjects, err := foldSubjects(role.path)
			if err != nil {
				log.Fatalf("failed to reload fold %d %s: %v", k, role.name, err)
			}
			for _, s := range subjects {
				if prev, dup := side[s]; dup {
					log.Printf("fold %d: subject %s in both %s and %s", k, s, prev, role.name)
					violations++
					continue
				}
				side[s] = role.name
			}
			if role.name == split.RoleTest {
				testSubs = subjects
			}
		}
		if len(side) != len(labelOf) {
			log.Printf("fold %d: sides cover %d subjects, expected %d", k, len(side), len(labelOf))
			violations++
		}

		counts := make(map[string]int)
		for _, s := range testSubs {
			testSeen[s]++
			counts[labelOf[s]]++
		}
		for _, label := range labels {
			share := float64(totals[label]) / float64(nSplits)
			dev := math.Abs(float64(counts[label]) - share)
			deviations = append(deviations, dev)
			if dev > 1 {
				log.Printf("fold %d: diagnosis %s has %d test subjects, even share is %.2f", k, label, counts[label], share)
				violations++
			}
		}
	}
	for subject := range labelOf {
		if testSeen[subject] != 1 {
			log.Printf("subject %s appears in %d test folds, expected exactly 1", subject, testSeen[subject])
			violations++
		}
	}

	mean := stat.Mean(deviations, nil)
	sd := 0.0
	if len(deviations) > 1 {
		sd = stat.StdDev(deviations, nil)
	}
	log.Printf("Per-fold test deviation from even share: mean=%.3f sd=%.3f", mean, sd)
	if violations > 0 {
		log.Fatalf("verification failed with %d violation(s)", violations)
	}
	log.Printf("All split invariants hold")
}

// runPlot draws the per-fold test composition as a grouped bar chart, one
// bar group per fold and one color per baseline diagnosis.
func runPlot(dataFile string, nSplits int, outDir string) {
	labelOf, labels, _, err := baselineIndex(dataFile)
	if err != nil {
		log.Fatalf("failed to index %s: %v", dataFile, err)
	}

	counts := make([]map[string]int, nSplits)
	for k := 0; k < nSplits; k++ {
		_, testPath, _ := split.SplitPaths(dataFile, k)
		subjects, err := foldSubjects(testPath)
		if err != nil {
			log.Fatalf("failed to reload fold %d test: %v", k, err)
		}
		counts[k] = make(map[string]int)
		for _, s := range subjects {
			counts[k][labelOf[s]]++
		}
	}

	p := plot.New()
	p.Title.Text = "Test subjects per fold by baseline diagnosis"
	p.Y.Label.Text = "subjects"

	w := vg.Points(16)
	palette := []color.RGBA{
		{R: 120, G: 120, B: 120, A: 255},
		{R: 20, G: 80, B: 200, A: 255},
		{R: 200, G: 30, B: 30, A: 255},
		{R: 40, G: 120, B: 40, A: 255},
	}
	for li, label := range labels {
		vals := make(plotter.Values, nSplits)
		for k := 0; k < nSplits; k++ {
			vals[k] = float64(counts[k][label])
		}
		bars, err := plotter.NewBarChart(vals, w)
		if err != nil {
			log.Fatalf("failed to build bars for %s: %v", label, err)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = palette[li%len(palette)]
		bars.Offset = vg.Length(float64(li)-float64(len(labels)-1)/2) * w
		p.Add(bars)
		p.Legend.Add(label, bars)
	}
	names := make([]string, nSplits)
	for k := range names {
		names[k] = fmt.Sprintf("fold %d", k)
	}
	p.NominalX(names...)
	p.Legend.Top = true

	if err := ensureDir(outDir); err != nil {
		log.Fatalf("failed to create output dir %s: %v", outDir, err)
	}
	outPath := filepath.Join(outDir, "fold_balance.png")
	if err := p.Save(8*vg.Inch, 6*vg.Inch, outPath); err != nil {
		log.Fatalf("failed to save plot: %v", err)
	}
	log.Printf("Wrote fold balance plot to %s", outPath)
}

// baselineIndex reduces the source table and returns each subject's baseline
// diagnosis, the sorted distinct diagnoses, and per-diagnosis subject counts.
func baselineIndex(dataFile string) (labelOf map[string]string, labels []string, totals map[string]int, err error) {
	tbl, err := split.ReadTable(dataFile)
	if err != nil {
		return nil, nil, nil, err
	}
	reduced, err := split.Reduce(tbl)
	if err != nil {
		return nil, nil, nil, err
	}
	pcol, _ := reduced.ColumnIndex(split.ColParticipant)
	dcol, _ := reduced.ColumnIndex(split.ColDiagnosis)

	labelOf = make(map[string]string, reduced.Len())
	totals = make(map[string]int)
	for i := 0; i < reduced.Len(); i++ {
		row := reduced.Row(i)
		labelOf[row[pcol]] = row[dcol]
		totals[row[dcol]]++
	}
	labels = make([]string, 0, len(totals))
	for label := range totals {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labelOf, labels, totals, nil
}

// foldSubjects reloads one split file through a dataframe, keeping every
// column as a plain string, and returns its distinct subjects in
// first-appearance order. Going through an independent reader keeps the
// verification honest about what actually landed on disk.
func foldSubjects(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.WithDelimiter('\t'),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String))
	if df.Err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, df.Err)
	}
	col := df.Col(split.ColParticipant)
	if col.Err != nil {
		return nil, fmt.Errorf("column %s of %s: %w", split.ColParticipant, path, col.Err)
	}

	seen := make(map[string]bool)
	var subjects []string
	for _, id := range col.Records() {
		if !seen[id] {
			seen[id] = true
			subjects = append(subjects, id)
		}
	}
	return subjects, nil
}

func ensureDir(path string) error {
	// Attempt to create directory if it doesn't exist (silently succeed if present).
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
