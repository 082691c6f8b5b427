package commands

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"info-collecte/internal/model"
	"info-collecte/internal/publish"
	"info-collecte/internal/schedule"
	"info-collecte/internal/scraper"
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Extract the schedule from a saved calendar page",
	Long: `Parse reads calendar page markup from --file or stdin and prints the
aggregated schedule.

Examples:
  collecte fetch -a "1000 rue Principale" | collecte parse
  collecte parse --file page.html --today 2025-01-20 --format ics`,
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	flags := parseCmd.Flags()
	flags.StringP("file", "f", "", "markup file (default: stdin)")
	flags.String("today", "", "reference date YYYY-MM-DD (default: today)")
	flags.String("format", "json", "output format: json, yaml, ics")
}

type categoryOutput struct {
	Next  string   `json:"next,omitempty" yaml:"next,omitempty"`
	Dates []string `json:"dates" yaml:"dates"`
}

type parseOutput struct {
	Today      string                    `json:"today" yaml:"today"`
	Categories map[string]categoryOutput `json:"categories" yaml:"categories"`
}

func runParse(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	flags := cmd.Flags()
	file, _ := flags.GetString("file")
	todayFlag, _ := flags.GetString("today")
	format, _ := flags.GetString("format")

	var (
		input []byte
		err   error
	)
	if file != "" {
		input, err = os.ReadFile(file)
	} else {
		input, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return errors.Wrap(err, "reading markup")
	}

	now := time.Now()
	today := model.DateOf(now)
	if todayFlag != "" {
		t, err := time.Parse(model.DateLayout, todayFlag)
		if err != nil {
			return errors.Wrapf(err, "invalid --today %q", todayFlag)
		}
		today = t
	}

	rules, err := loadRules()
	if err != nil {
		return err
	}
	classifier := scraper.NewClassifier(rules)

	entries, err := scraper.NewParser(classifier, log).Parse(string(input), today.Year())
	if err != nil {
		return err
	}
	sched, err := schedule.Aggregate(entries, today)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "ics":
		_, err = io.WriteString(out, publish.BuildCalendar(publish.CalendarInput{
			Schedule:    sched,
			Categories:  classifier.Categories(),
			Today:       today,
			GeneratedAt: now,
			Title:       classifier.Label,
		}))
		return err
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(toParseOutput(sched, today)); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(toParseOutput(sched, today))
	default:
		return errors.Newf("unknown format %q", format)
	}
}

func toParseOutput(sched model.Schedule, today time.Time) parseOutput {
	out := parseOutput{
		Today:      model.FormatDate(today),
		Categories: make(map[string]categoryOutput, len(sched)),
	}
	for _, cat := range sched.Categories() {
		cs := sched[cat]
		out.Categories[string(cat)] = categoryOutput{
			Next:  cs.NextISO(),
			Dates: cs.DateStrings(),
		}
	}
	return out
}
