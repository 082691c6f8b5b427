// Package pipeline sequences one collection run: fetch the calendar page,
// parse and aggregate it, decide remote notifications, publish the outcome
// and persist the dedup record.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"info-collecte/internal/dedup"
	"info-collecte/internal/hass"
	"info-collecte/internal/logger"
	"info-collecte/internal/model"
	"info-collecte/internal/publish"
	"info-collecte/internal/schedule"
	"info-collecte/internal/scraper"
)

// MarkupSource returns the rendered calendar page of an address.
type MarkupSource interface {
	Fetch(ctx context.Context, address string) (string, error)
}

// Invalidator is implemented by caching sources.
type Invalidator interface {
	Invalidate(address string)
}

// Publisher is the retained-message transport.
type Publisher interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
	Close()
}

// EventCreator creates events in a remote calendar.
type EventCreator interface {
	CreateEvent(ctx context.Context, ev hass.Event) error
}

// Archiver stores every known date of a category.
type Archiver interface {
	ReplaceDatesForCategory(ctx context.Context, address, category string, dates []string, runID string) error
}

// Deps are the collaborators of a Controller. Events and Archive are
// optional.
type Deps struct {
	Source     MarkupSource
	Classifier *scraper.Classifier
	Dedup      *dedup.State
	Builder    *publish.Builder
	Publisher  Publisher
	Events     EventCreator
	Archive    Archiver
}

// Options configures a Controller.
type Options struct {
	Address    string
	CalendarID string
	// ICSPath is the calendar file rewritten after each successful run.
	// Empty disables it.
	ICSPath string
}

// Result describes a finished run.
type Result struct {
	RunID    string
	State    State
	Path     []State
	Status   model.RunStatus
	Schedule model.Schedule
	// Notified lists the categories for which a remote event was created.
	Notified []model.Category
	// Published counts messages accepted by the transport.
	Published int
}

// Controller runs the pipeline. It is not safe for concurrent runs against
// the same dedup state.
type Controller struct {
	deps   Deps
	opts   Options
	parser *scraper.Parser
	log    *zap.SugaredLogger

	now      func() time.Time
	newRunID func() string
}

// New creates a Controller.
func New(deps Deps, opts Options, log *zap.SugaredLogger) *Controller {
	log = logger.OrNop(log)
	if deps.Classifier == nil {
		deps.Classifier = scraper.NewClassifier(nil)
	}
	if deps.Builder == nil {
		deps.Builder = publish.NewBuilder(publish.DefaultOptions())
	}
	return &Controller{
		deps:     deps,
		opts:     opts,
		parser:   scraper.NewParser(deps.Classifier, log),
		log:      log,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// run tracks the states visited by one Run.
type run struct {
	id   string
	path []State
	log  *zap.SugaredLogger
}

func (r *run) enter(s State) {
	r.path = append(r.path, s)
	r.log.Infow("pipeline state", logger.FieldState, s.String())
}

func (r *run) current() State {
	return r.path[len(r.path)-1]
}

// Run performs one run. The only returned error is a transport connection
// failure, in which case nothing was published and nothing persisted. Every
// other failure is reported through Result.Status and the published status
// sensor.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	r := &run{id: c.newRunID()}
	r.log = c.log.With(logger.FieldRunID, r.id, logger.FieldAddress, c.opts.Address)
	r.enter(StateInit)

	if err := c.deps.Publisher.Connect(ctx); err != nil {
		r.log.Errorw("transport unavailable", logger.FieldError, err)
		r.enter(StateFailed)
		return Result{RunID: r.id, State: StateFailed, Path: r.path, Status: model.Failure(err.Error())}, err
	}
	defer c.deps.Publisher.Close()

	now := c.now()
	today := model.DateOf(now)
	record, loadErr := c.deps.Dedup.Load()
	if loadErr != nil {
		r.log.Errorw("notification record unavailable, remote events and commit skipped", logger.FieldError, loadErr)
	}

	res := Result{RunID: r.id, Status: model.Success}
	sched, err := c.extract(ctx, r, today)
	if err != nil {
		r.log.Errorw("run failed", logger.FieldState, r.current().String(), logger.FieldError, err)
		if errors.Is(err, scraper.ErrNoScheduleFound) {
			if inv, ok := c.deps.Source.(Invalidator); ok {
				inv.Invalidate(c.opts.Address)
			}
		}
		r.enter(StateFailed)
		res.Status = model.Failure(err.Error())
	} else {
		res.Schedule = sched
		r.enter(StateDeciding)
		if loadErr == nil {
			res.Notified = c.decide(ctx, r, record, sched)
		}
	}

	r.enter(StatePublishing)
	res.Published = c.publish(ctx, r, res.Status, sched, now)

	if res.Status.OK() {
		c.writeCalendar(r, sched, today, now)
		c.archive(ctx, r, sched)
		if loadErr == nil {
			if err := c.deps.Dedup.Commit(record); err != nil {
				r.log.Errorw("failed to persist dedup record", logger.FieldError, err)
			}
		}
		r.enter(StateDone)
		res.State = StateDone
	} else {
		res.State = StateFailed
	}

	res.Path = r.path
	r.log.Infow("run finished", logger.FieldStatus, res.Status.Tag(), logger.FieldCount, res.Published)
	return res, nil
}

func (c *Controller) extract(ctx context.Context, r *run, today time.Time) (model.Schedule, error) {
	r.enter(StateFetching)
	markup, err := c.deps.Source.Fetch(ctx, c.opts.Address)
	if err != nil {
		return nil, errors.Wrap(err, "fetch calendar page")
	}

	r.enter(StateParsing)
	entries, err := c.parser.Parse(markup, today.Year())
	if err != nil {
		return nil, err
	}
	r.log.Debugw("parsed calendar", logger.FieldCount, len(entries))

	r.enter(StateAggregating)
	return schedule.Aggregate(entries, today)
}

// decide creates one remote event per category whose next date was not
// notified yet. A failed creation restores the previous record value so the
// next run retries it.
func (c *Controller) decide(ctx context.Context, r *run, record dedup.Record, sched model.Schedule) []model.Category {
	if c.deps.Events == nil {
		return nil
	}

	var notified []model.Category
	for _, cat := range c.deps.Classifier.Categories() {
		cs := sched[cat]
		candidate := cs.NextISO()
		prev := record[string(cat)]
		if !record.ShouldNotify(cat, candidate) {
			continue
		}

		ev := hass.Event{
			CalendarID:  c.opts.CalendarID,
			Start:       *cs.Next,
			End:         cs.Next.AddDate(0, 0, 1),
			Title:       c.deps.Classifier.Label(cat),
			Description: fmt.Sprintf("%s le %s (%s)", c.deps.Classifier.Label(cat), candidate, c.opts.Address),
		}
		if err := c.deps.Events.CreateEvent(ctx, ev); err != nil {
			r.log.Warnw("remote event creation failed",
				logger.FieldCategory, cat, logger.FieldDate, candidate, logger.FieldError, err)
			record.Restore(cat, prev)
			continue
		}
		r.log.Infow("remote event created", logger.FieldCategory, cat, logger.FieldDate, candidate)
		notified = append(notified, cat)
	}
	return notified
}

// publish sends every message and returns how many were accepted. A failed
// message does not stop the others.
func (c *Controller) publish(ctx context.Context, r *run, status model.RunStatus, sched model.Schedule, now time.Time) int {
	msgs, err := c.deps.Builder.Build(publish.Input{
		Status:      status,
		Schedule:    sched,
		Categories:  c.deps.Classifier.Categories(),
		RunID:       r.id,
		GeneratedAt: now,
	})
	if err != nil {
		r.log.Errorw("failed to build publications", logger.FieldError, err)
		return 0
	}

	sent := 0
	for _, m := range msgs {
		if err := c.deps.Publisher.Publish(ctx, m.Topic, m.Payload, m.Retain); err != nil {
			r.log.Warnw("publish failed", logger.FieldTopic, m.Topic, logger.FieldError, err)
			continue
		}
		sent++
	}
	return sent
}

func (c *Controller) writeCalendar(r *run, sched model.Schedule, today, now time.Time) {
	if c.opts.ICSPath == "" {
		return
	}
	doc := publish.BuildCalendar(publish.CalendarInput{
		Schedule:    sched,
		Categories:  c.deps.Classifier.Categories(),
		Today:       today,
		GeneratedAt: now,
		Title:       c.deps.Classifier.Label,
	})
	if err := publish.WriteCalendarFile(c.opts.ICSPath, doc); err != nil {
		r.log.Errorw("failed to write calendar file", logger.FieldPath, c.opts.ICSPath, logger.FieldError, err)
		return
	}
	r.log.Infow("calendar file written", logger.FieldPath, c.opts.ICSPath)
}

func (c *Controller) archive(ctx context.Context, r *run, sched model.Schedule) {
	if c.deps.Archive == nil {
		return
	}
	for _, cat := range sched.Categories() {
		dates := sched[cat].DateStrings()
		if err := c.deps.Archive.ReplaceDatesForCategory(ctx, c.opts.Address, string(cat), dates, r.id); err != nil {
			r.log.Warnw("archive failed", logger.FieldCategory, cat, logger.FieldError, err)
			continue
		}
		r.log.Debugw("archived dates", logger.FieldCategory, cat, logger.FieldCount, len(dates))
	}
}
