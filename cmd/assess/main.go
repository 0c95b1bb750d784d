// Command assess runs an assessment in the terminal and optionally stores the
// completed submission in a local SQLite database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/gokatarajesh/clinic-assessments/content"
	"github.com/gokatarajesh/clinic-assessments/internal/catalog"
	"github.com/gokatarajesh/clinic-assessments/internal/db/repository"
	"github.com/gokatarajesh/clinic-assessments/internal/logging"
	"github.com/gokatarajesh/clinic-assessments/internal/runner"
	"github.com/gokatarajesh/clinic-assessments/internal/widget"
)

type options struct {
	assessmentID string
	list         bool
	dir          string
	dbPath       string
	subject      string
	delay        time.Duration
	sliderPolicy string
	noColor      bool
	verbose      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.assessmentID, "assessment", "", "Assessment id to run")
	flag.BoolVar(&opts.list, "list", false, "List available assessments and exit")
	flag.StringVar(&opts.dir, "dir", "", "Load assessments from this directory instead of the embedded set")
	flag.StringVar(&opts.dbPath, "db", "", "SQLite file to store the completed submission in")
	flag.StringVar(&opts.subject, "subject", "", "Subject recorded with the submission")
	flag.DurationVar(&opts.delay, "delay", 300*time.Millisecond, "Auto-advance delay after a single-choice answer")
	flag.StringVar(&opts.sliderPolicy, "slider-policy", string(runner.SliderDefaultAnswered), "Slider policy: default_answered or require_touch")
	flag.BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	flag.BoolVar(&opts.verbose, "v", false, "Log to stderr")
	flag.Parse()

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "assess:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	logger := zerolog.Nop()
	if opts.verbose {
		logger = logging.NewWithWriter(os.Stderr, "assess", "development")
	}

	cat, err := loadCatalog(opts.dir, logger)
	if err != nil {
		return err
	}

	if opts.list || opts.assessmentID == "" {
		listAssessments(stdout, cat)
		if opts.assessmentID == "" && !opts.list {
			return errors.New("-assessment is required")
		}
		return nil
	}

	entry, err := cat.Get(opts.assessmentID)
	if err != nil {
		return err
	}

	policy := runner.SliderPolicy(opts.sliderPolicy)
	switch policy {
	case runner.SliderDefaultAnswered, runner.SliderRequireTouch:
	default:
		return fmt.Errorf("unknown slider policy %q", opts.sliderPolicy)
	}

	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return errors.New("assess needs an interactive terminal")
	}

	player, err := widget.NewPlayer(widget.PlayerConfig{
		Definition:       &entry.Definition,
		Engine:           entry.Engine(),
		AutoAdvanceDelay: opts.delay,
		SliderPolicy:     policy,
		NoColor:          opts.noColor || os.Getenv("NO_COLOR") != "",
	})
	if err != nil {
		return err
	}

	if _, err := tea.NewProgram(player, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("run player: %w", err)
	}

	logger.Info().Str("assessment_id", entry.ID).Str("outcome", player.Outcome().String()).Msg("player finished")
	if player.Outcome() != widget.OutcomeCompleted {
		fmt.Fprintf(stdout, "Assessment %s: %s\n", entry.ID, player.Outcome())
		return nil
	}

	printSummary(stdout, player)
	if opts.dbPath == "" {
		return nil
	}
	return saveSubmission(ctx, opts, entry.ID, player, stdout)
}

func loadCatalog(dir string, logger zerolog.Logger) (*catalog.Catalog, error) {
	if dir != "" {
		return catalog.LoadDir(dir, logger)
	}
	return catalog.Load(content.Assessments(), logger)
}

func listAssessments(w io.Writer, cat *catalog.Catalog) {
	for _, entry := range cat.List() {
		fmt.Fprintf(w, "%-24s %s (%d questions)\n", entry.ID, entry.Title, entry.Len())
	}
}

func printSummary(w io.Writer, p *widget.Player) {
	for _, l := range p.Labels() {
		fmt.Fprintf(w, "%s: %s\n", l.Question, l.Answer)
	}
	if metrics := p.Metrics(); len(metrics) > 0 {
		parts := make([]string, 0, len(metrics))
		for _, m := range metrics {
			parts = append(parts, fmt.Sprintf("%s=%g", m.Name, m.Value))
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
	}
}

func saveSubmission(ctx context.Context, opts options, assessmentID string, p *widget.Player, w io.Writer) error {
	db, err := repository.OpenSQLite(ctx, opts.dbPath)
	if err != nil {
		return fmt.Errorf("open submissions db: %w", err)
	}
	defer db.Close()

	sub := &repository.Submission{
		AttemptID:    uuid.New(),
		AssessmentID: assessmentID,
		Subject:      opts.subject,
		Answers:      p.State().Answers,
		Labels:       p.Labels(),
		Metrics:      p.Metrics(),
	}
	if err := repository.NewSubmissionRepository(db).Save(ctx, sub); err != nil {
		return fmt.Errorf("save submission: %w", err)
	}
	fmt.Fprintf(w, "Saved submission %s to %s\n", sub.ID, opts.dbPath)
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
