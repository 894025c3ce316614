package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/EduConnect/TutorHub/internal/approval"
	"github.com/EduConnect/TutorHub/internal/dialogue"
	"github.com/EduConnect/TutorHub/internal/models"
)

// Constants for dispatcher configuration
const (
	// SearchPageSize is the number of tutors shown per search results page.
	SearchPageSize = 5
)

const helpText = `Available commands:
register - start tutor registration
cancel - cancel an in-progress registration
myprofile - view your registered profile
update <field> <value> - change one field of your profile
find <subject> [page] - search approved tutors by subject
find grade <range> [page] - search by grade range
find location <area> [page] - search by location
find all [page] - browse all approved tutors
help - show this message`

// SearchStore is the slice of the record store the dispatcher needs for
// profile lookups and tutor search.
type SearchStore interface {
	GetTutorByIdentity(identity string) (*models.Tutor, error)
	ListTutors(f models.SearchFilter, skip, limit int) ([]models.Tutor, error)
	CountTutors(f models.SearchFilter) (int, error)
}

// Dispatcher consumes the transport's inbound event stream and routes each
// event through the dialogue machine, the approval workflow's field updates,
// or the search and profile commands. Events for one identity are processed
// strictly in order; different identities proceed concurrently.
type Dispatcher struct {
	svc      Service
	decoder  *Decoder
	machine  *dialogue.Machine
	workflow *approval.Workflow
	records  SearchStore

	mu     sync.Mutex
	queues map[string]chan models.Event
	wg     sync.WaitGroup
}

// NewDispatcher wires the dispatcher over its collaborators.
func NewDispatcher(svc Service, decoder *Decoder, machine *dialogue.Machine, workflow *approval.Workflow, records SearchStore) *Dispatcher {
	return &Dispatcher{
		svc:      svc,
		decoder:  decoder,
		machine:  machine,
		workflow: workflow,
		records:  records,
		queues:   make(map[string]chan models.Event),
	}
}

// Run consumes inbound events until the context is cancelled or the event
// channel closes. Each identity gets its own worker, so events from one
// user are processed strictly in arrival order while different users
// proceed in parallel.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher started")
	defer d.drain()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher stopping due to context cancellation")
			return
		case ev, ok := <-d.svc.Events():
			if !ok {
				slog.Info("Dispatcher stopping, event channel closed")
				return
			}
			if ev.Identity == "" {
				slog.Warn("Dispatcher dropping event without identity", "kind", ev.Kind)
				continue
			}
			select {
			case d.identityQueue(ctx, ev.Identity) <- ev:
			default:
				slog.Warn("Dispatcher dropping event, identity queue full", "identity", ev.Identity, "kind", ev.Kind)
			}
		}
	}
}

// identityQueue returns the identity's event queue, starting its worker on
// first use.
func (d *Dispatcher) identityQueue(ctx context.Context, identity string) chan models.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	queue, ok := d.queues[identity]
	if !ok {
		queue = make(chan models.Event, DefaultChannelBufferSize)
		d.queues[identity] = queue
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range queue {
				d.dispatch(ctx, ev)
			}
		}()
	}
	return queue
}

// drain closes all identity queues and waits for their workers to finish.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	for _, queue := range d.queues {
		close(queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// dispatch decodes and handles one event for one identity.
func (d *Dispatcher) dispatch(ctx context.Context, ev models.Event) {
	ev = d.decoder.Decode(ev)
	slog.Debug("Dispatcher handling event", "identity", ev.Identity, "kind", ev.Kind)

	reply, err := d.route(ctx, ev)
	if err != nil {
		slog.Error("Dispatcher event handling failed", "error", err, "identity", ev.Identity, "kind", ev.Kind)
		reply = "Something went wrong on our side. Please try again."
	}
	if reply == "" {
		return
	}
	if err := d.svc.SendText(ctx, ev.Identity, reply); err != nil {
		slog.Error("Dispatcher reply delivery failed", "error", err, "identity", ev.Identity)
	}
}

func (d *Dispatcher) route(ctx context.Context, ev models.Event) (string, error) {
	if ev.Kind == models.EventCommand {
		return d.handleCommand(ctx, ev)
	}

	reply, handled, err := d.machine.HandleEvent(ev)
	if err != nil || handled {
		return reply, err
	}

	// No live session. Cancelling nothing still deserves an answer,
	// anything else points the user at the commands.
	switch ev.Kind {
	case models.EventCancel:
		return "You have no registration in progress. Nothing to cancel.", nil
	case models.EventText, models.EventPhoto:
		return "I didn't understand that. Send 'help' to see what I can do.", nil
	}
	return "", nil
}

func (d *Dispatcher) handleCommand(ctx context.Context, ev models.Event) (string, error) {
	switch ev.Text {
	case models.CommandRegister:
		return d.machine.Start(ev.Identity)
	case models.CommandMyProfile:
		return d.showProfile(ctx, ev.Identity)
	case models.CommandUpdate:
		return d.updateField(ev.Identity, ev.Args)
	case models.CommandFind:
		return d.search(ev.Args)
	case models.CommandHelp:
		return helpText, nil
	default:
		return helpText, nil
	}
}

// showProfile renders the caller's own record, sending the photo alongside
// when one is on file.
func (d *Dispatcher) showProfile(ctx context.Context, identity string) (string, error) {
	rec, err := d.records.GetTutorByIdentity(identity)
	if err != nil {
		return "", err
	}
	if rec == nil {
		sess, err := d.machine.SessionFor(identity)
		if err != nil {
			return "", err
		}
		if sess != nil {
			return "Your registration is still in progress. Send 'register' to resume it.", nil
		}
		return "You are not registered yet. Send 'register' to create a tutor profile.", nil
	}
	if rec.PhotoRef != "" {
		if err := d.svc.SendPhoto(ctx, identity, rec.PhotoRef, rec.FormatProfile()); err != nil {
			slog.Error("Failed to send profile photo, falling back to text", "error", err, "identity", identity)
			return rec.FormatProfile(), nil
		}
		return "", nil
	}
	return rec.FormatProfile(), nil
}

// updateField applies a single-field edit: "update <field> <value>".
func (d *Dispatcher) updateField(identity, args string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 || parts[0] == "" {
		keys := make([]string, 0, len(dialogue.Fields()))
		for _, spec := range dialogue.Fields() {
			keys = append(keys, string(spec.Key))
		}
		return "Usage: update <field> <value>\nFields: " + strings.Join(keys, ", "), nil
	}
	key := models.FieldKey(strings.ToLower(parts[0]))
	rec, err := d.workflow.UpdateField(identity, key, parts[1])
	if err != nil {
		switch {
		case errorsIsAny(err, models.ErrUnknownField, models.ErrInvalidInput, models.ErrEmptySelection):
			return "Couldn't update: " + userMessage(err), nil
		case errorsIsAny(err, models.ErrNotFound):
			return "You are not registered yet. Send 'register' to create a tutor profile.", nil
		default:
			return "", err
		}
	}
	return "Updated!\n\n" + rec.FormatProfile(), nil
}

// search lists approved tutors, paginated. A query is a subject name,
// "grade <range>", "location <area>", or "all", optionally followed by
// a page number.
func (d *Dispatcher) search(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return searchUsage(), nil
	}

	page := 1
	if len(fields) >= 2 {
		if n, err := strconv.Atoi(fields[len(fields)-1]); err == nil && n > 0 {
			// "find grade 3" picks grade option 3, not page 3.
			if !(len(fields) == 2 && isSearchKeyword(fields[0])) {
				page = n
				fields = fields[:len(fields)-1]
			}
		}
	}

	filter := models.SearchFilter{Status: models.StatusApproved}
	var label string
	switch strings.ToLower(fields[0]) {
	case "all":
		label = "all subjects"
	case "grade":
		if len(fields) < 2 {
			return searchUsage(), nil
		}
		spec, _ := dialogue.FieldByKey(models.FieldGrades)
		band, ok := dialogue.ResolveOption(spec, strings.Join(fields[1:], " "))
		if !ok {
			return "Unknown grade range. Ranges: " + strings.Join(models.GradeRanges, ", "), nil
		}
		filter.Grade = band
		label = "grades " + band
	case "location":
		if len(fields) < 2 {
			return searchUsage(), nil
		}
		filter.Location = strings.Join(fields[1:], " ")
		label = "location " + filter.Location
	default:
		spec, _ := dialogue.FieldByKey(models.FieldSubjects)
		subject, ok := dialogue.ResolveOption(spec, strings.Join(fields, " "))
		if !ok {
			return "Unknown subject. Subjects: " + strings.Join(models.SubjectList, ", "), nil
		}
		filter.Subject = subject
		label = subject
	}

	total, err := d.records.CountTutors(filter)
	if err != nil {
		return "", err
	}
	if total == 0 {
		return fmt.Sprintf("No approved tutors found for %s yet.", label), nil
	}

	tutors, err := d.records.ListTutors(filter, (page-1)*SearchPageSize, SearchPageSize)
	if err != nil {
		return "", err
	}
	if len(tutors) == 0 {
		return fmt.Sprintf("No more results. %d tutor(s) found for %s.", total, label), nil
	}

	var b strings.Builder
	pages := (total + SearchPageSize - 1) / SearchPageSize
	fmt.Fprintf(&b, "Tutors for %s (page %d of %d):\n", label, page, pages)
	for i, t := range tutors {
		fmt.Fprintf(&b, "\n%d. %s - %s, %s\n   Grades %s, %s. Contact: %s\n",
			(page-1)*SearchPageSize+i+1, t.DisplayName(), t.University, t.Location, t.Grades, t.Method, t.Contact)
	}
	if page < pages {
		fmt.Fprintf(&b, "\nSend 'find %s %d' for the next page.", strings.ToLower(strings.Join(fields, " ")), page+1)
	}
	return b.String(), nil
}

func searchUsage() string {
	return "Usage: find <subject> | find grade <range> | find location <area> | find all\n" +
		"Subjects: " + strings.Join(models.SubjectList, ", ")
}

func isSearchKeyword(s string) bool {
	switch strings.ToLower(s) {
	case "grade", "location":
		return true
	}
	return false
}

// errorsIsAny reports whether err matches any of the targets.
func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// userMessage extracts a message suitable to show the user.
func userMessage(err error) string {
	return err.Error()
}
