// Package conversation implements the per-user dialog that configures filters and adds listings.
package conversation

import (
	"carwatch/filter"
	"carwatch/pkg/tracker"
	"carwatch/session"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Store is the part of the tracking store the dialog needs.
type Store interface {
	Profile(ctx context.Context, userID string) (*tracker.Profile, error)
	SetCity(ctx context.Context, userID, city string) (*tracker.Profile, error)
	UpdateFilters(ctx context.Context, userID string, fn func(f *tracker.Filters)) (*tracker.Profile, error)
	AddListing(ctx context.Context, userID, url string, snap *tracker.Snapshot) (*tracker.Listing, error)
	Listings(ctx context.Context, userID string) ([]*tracker.Listing, error)
}

// Source fetches the current state of a listing.
type Source interface {
	Fetch(ctx context.Context, url string) (*tracker.Snapshot, error)
}

// Config holds the engine dependencies.
type Config struct {
	Store        Store
	Source       Source
	Sessions     session.Store
	Locker       session.Locker
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Engine runs one transition per incoming message.
type Engine struct {
	store        Store
	source       Source
	sessions     session.Store
	locker       session.Locker
	fetchTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// New creates an engine.
func New(cfg Config) *Engine {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &Engine{
		store:        cfg.Store,
		source:       cfg.Source,
		sessions:     cfg.Sessions,
		locker:       cfg.Locker,
		fetchTimeout: cfg.FetchTimeout,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// HandleText decodes raw and handles it.
func (e *Engine) HandleText(ctx context.Context, userID, raw string) ([]Reply, error) {
	return e.Handle(ctx, userID, Decode(raw))
}

// Handle runs the transition for cmd and returns the replies in send order.
// It returns session.ErrBusy when another message of the same user is being handled.
func (e *Engine) Handle(ctx context.Context, userID string, cmd Command) ([]Reply, error) {
	unlock, err := e.locker.TryLock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	from := sess.State
	replies := e.transition(ctx, userID, sess, cmd)

	if err := e.sessions.Put(ctx, userID, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	e.logger.Debug("Message handled",
		"user_id", userID,
		"kind", cmd.Kind,
		"from", from,
		"to", sess.State,
		"replies", len(replies))
	return replies, nil
}

// transition mutates sess in place and returns the replies.
func (e *Engine) transition(ctx context.Context, userID string, sess *session.Session, cmd Command) []Reply {
	if cmd.Kind == KindBack || cmd.Kind == KindStart {
		sess.Reset()
		return e.mainMenu(ctx, userID)
	}

	switch sess.State {
	case session.ChoosingCity:
		return e.onCity(ctx, userID, sess, cmd)
	case session.AddingURL:
		return e.onURL(ctx, userID, sess, cmd)
	case session.FilterMenu:
		return e.onFilterMenu(ctx, userID, sess, cmd)
	case session.AwaitingPriceMin, session.AwaitingPriceMax:
		return e.onPrice(ctx, userID, sess, cmd)
	case session.AwaitingYearMin, session.AwaitingYearMax:
		return e.onYear(ctx, userID, sess, cmd)
	case session.ChoosingCondition:
		return e.onCondition(ctx, userID, sess, cmd)
	case session.ChoosingDocuments:
		return e.onDocuments(ctx, userID, sess, cmd)
	default:
		sess.Reset()
		return e.onMainMenu(ctx, userID, sess, cmd)
	}
}

func (e *Engine) profile(ctx context.Context, userID string) (*tracker.Profile, []Reply) {
	p, err := e.store.Profile(ctx, userID)
	if err != nil {
		e.logger.Error("Failed to load profile", "user_id", userID, "error", err)
		return nil, []Reply{{Text: textLoadFailed, Menu: MenuMain}}
	}
	return p, nil
}

func (e *Engine) saveFailed(userID, op string, err error, menu Menu) []Reply {
	e.logger.Error("Failed to save user change", "user_id", userID, "op", op, "error", err)
	return []Reply{{Text: textSaveFailed, Menu: menu}}
}

func (e *Engine) mainMenu(ctx context.Context, userID string) []Reply {
	p, failed := e.profile(ctx, userID)
	if failed != nil {
		return failed
	}
	return []Reply{{Text: welcomeText(p), Menu: MenuMain}}
}

func (e *Engine) onMainMenu(ctx context.Context, userID string, sess *session.Session, cmd Command) []Reply {
	switch cmd.Kind {
	case KindChooseCity:
		sess.State = session.ChoosingCity
		return []Reply{{Text: cityPromptText(), Menu: MenuCity}}

	case KindAddListing:
		p, failed := e.profile(ctx, userID)
		if failed != nil {
			return failed
		}
		if p.City == "" {
			return []Reply{{Text: textCityFirst, Menu: MenuMain}}
		}
		sess.State = session.AddingURL
		return []Reply{{Text: addPromptText(), Menu: MenuBack}}

	case KindList:
		listings, err := e.store.Listings(ctx, userID)
		if err != nil {
			e.logger.Error("Failed to load listings", "user_id", userID, "error", err)
			return []Reply{{Text: textLoadFailed, Menu: MenuMain}}
		}
		chunks := listingOverview(listings)
		replies := make([]Reply, len(chunks))
		for i, c := range chunks {
			replies[i] = Reply{Text: c}
		}
		replies[len(replies)-1].Menu = MenuMain
		return replies

	case KindFilters:
		p, failed := e.profile(ctx, userID)
		if failed != nil {
			return failed
		}
		sess.State = session.FilterMenu
		return []Reply{{Text: filterMenuText(p.Filters), Menu: MenuFilters}}

	case KindSettings:
		p, failed := e.profile(ctx, userID)
		if failed != nil {
			return failed
		}
		return []Reply{{Text: settingsText(p), Menu: MenuMain}}

	case KindHelp:
		p, failed := e.profile(ctx, userID)
		if failed != nil {
			return failed
		}
		return []Reply{{Text: helpText(p.ThresholdPercent), Menu: MenuMain}}
	}

	return e.mainMenu(ctx, userID)
}

func (e *Engine) onCity(ctx context.Context, userID string, sess *session.Session, cmd Command) []Reply {
	switch {
	case cmd.Kind == KindCustomCity:
		return []Reply{{Text: textCustomCity, Menu: MenuBack}}
	case cmd.Kind != KindText || cmd.Text == "":
		return []Reply{{Text: textPickCity, Menu: MenuCity}}
	}

	if _, err := e.store.SetCity(ctx, userID, cmd.Text); err != nil {
		return e.saveFailed(userID, "set_city", err, MenuCity)
	}
	e.logger.Info("City set", "user_id", userID, "city", cmd.Text)

	sess.Reset()
	return []Reply{{Text: fmt.Sprintf("✅ City set: %s\n\nYou can add listings now!", cmd.Text), Menu: MenuMain}}
}

func (e *Engine) onURL(ctx context.Context, userID string, sess *session.Session, cmd Command) []Reply {
	url := strings.TrimSpace(cmd.Text)
	if _, ok := tracker.SiteFor(url); !ok {
		return []Reply{{Text: textInvalidURL, Menu: MenuBack}}
	}

	p, failed := e.profile(ctx, userID)
	if failed != nil {
		return failed
	}
	if p.Listing(url) != nil {
		sess.Reset()
		return []Reply{{Text: textDuplicate, Menu: MenuMain}}
	}

	replies := []Reply{{Text: textFetching}}

	fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	snap, err := e.source.Fetch(fctx, url)
	cancel()
	if err != nil {
		e.logger.Warn("Listing fetch failed", "user_id", userID, "url", url, "error", err)
		return append(replies, Reply{Text: textFetchFailed, Menu: MenuBack})
	}

	if !filter.Matches(snap, p.Filters) && sess.PendingOverrideURL != url {
		sess.PendingOverrideURL = url
		e.logger.Info("Listing does not match filters", "user_id", userID, "url", url, "price", snap.Price)
		return append(replies, Reply{Text: mismatchText(snap), Menu: MenuBack})
	}

	l, err := e.store.AddListing(ctx, userID, url, snap)
	switch {
	case errors.Is(err, tracker.ErrDuplicateListing):
		sess.Reset()
		return append(replies, Reply{Text: textDuplicate, Menu: MenuMain})
	case err != nil:
		return append(replies, e.saveFailed(userID, "add_listing", err, MenuBack)...)
	}

	sess.Reset()
	return append(replies, Reply{Text: addedText(l), Menu: MenuMain})
}

func (e *Engine) onFilterMenu(ctx context.Context, userID string, sess *session.Session, cmd Command) []Reply {
	switch cmd.Kind {
	case KindPrice:
		sess.State = session.AwaitingPriceMin
		return []Reply{{Text: textPriceMin, Menu: MenuBack}}
	case KindYear:
		sess.State = session.AwaitingYearMin
		return []Reply{{Text: textYearMin, Menu: MenuBack}}
	case KindCondition:
		sess.State = session.ChoosingCondition
		return []Reply{{Text: textConditionMenu, Menu: MenuCondition}}
	case KindDocuments:
		sess.State = session.ChoosingDocuments
		return []Reply{{Text: textDocumentsMenu, Menu: MenuDocuments}}
	case KindResetFilters:
		if _, err := e.store.UpdateFilters(ctx, userID, func(f *tracker.Filters) { *f = tracker.Filters{} }); err != nil {
			return e.saveFailed(userID, "reset_filters", err, MenuFilters)
		}
		e.logger.Info("Filters cleared", "user_id", userID)
		return []Reply{{Text: textFiltersCleared, Menu: MenuFilters}}
	}

	p, failed := e.profile(ctx, userID)
	if failed != nil {
		return failed
	}
	return []Reply{{Text: filterMenuText(p.Filters), Menu: MenuFilters}}
}

func (e *Engine) onPrice(ctx context.Context, userID string, sess *session.Session, cmd Command) []Reply {
	value, err := parsePrice(cmd.Text)
	if err != nil {
		return []Reply{{Text: textBadPrice, Menu: MenuBack}}
	}

	isMin := sess.State == session.AwaitingPriceMin
	p, err := e.store.UpdateFilters(ctx, userID, func(f *tracker.Filters) {
		if isMin {
			f.PriceMin = value
		} else {
			f.PriceMax = value
		}
	})
	if err != nil {
		return e.saveFailed(userID, "update_price", err, MenuBack)
	}

	if isMin {
		sess.State = session.AwaitingPriceMax
		return []Reply{{Text: textPriceMax, Menu: MenuBack}}
	}
	sess.State = session.FilterMenu
	return []Reply{{Text: "✅ Price filter set!\n\n" + filtersSummary(p.Filters), Menu: MenuFilters}}
}

func (e *Engine) onYear(ctx context.Context, userID string, sess *session.Session, cmd Command) []Reply {
	currentYear := e.now().Year()
	value, err := parseYear(cmd.Text, currentYear)
	if err != nil {
		return []Reply{{Text: yearRangeText(currentYear), Menu: MenuBack}}
	}

	isMin := sess.State == session.AwaitingYearMin
	p, err := e.store.UpdateFilters(ctx, userID, func(f *tracker.Filters) {
		if isMin {
			f.YearMin = value
		} else {
			f.YearMax = value
		}
	})
	if err != nil {
		return e.saveFailed(userID, "update_year", err, MenuBack)
	}

	if isMin {
		sess.State = session.AwaitingYearMax
		return []Reply{{Text: textYearMax, Menu: MenuBack}}
	}
	sess.State = session.FilterMenu
	return []Reply{{Text: "✅ Year filter set!\n\n" + filtersSummary(p.Filters), Menu: MenuFilters}}
}

var conditionKinds = map[Kind]tracker.Condition{
	KindConditionNew:  tracker.ConditionNew,
	KindConditionUsed: tracker.ConditionUsed,
	KindConditionAny:  tracker.ConditionAny,
}

func (e *Engine) onCondition(ctx context.Context, userID string, sess *session.Session, cmd Command) []Reply {
	cond, ok := conditionKinds[cmd.Kind]
	if !ok {
		return []Reply{{Text: textPickOption, Menu: MenuCondition}}
	}

	p, err := e.store.UpdateFilters(ctx, userID, func(f *tracker.Filters) { f.Condition = cond })
	if err != nil {
		return e.saveFailed(userID, "update_condition", err, MenuCondition)
	}
	sess.State = session.FilterMenu
	return []Reply{{Text: "✅ Condition filter set!\n\n" + filtersSummary(p.Filters), Menu: MenuFilters}}
}

var documentsKinds = map[Kind]tracker.Documents{
	KindDocumentsWith:    tracker.DocumentsWith,
	KindDocumentsWithout: tracker.DocumentsWithout,
	KindDocumentsAny:     tracker.DocumentsAny,
}

func (e *Engine) onDocuments(ctx context.Context, userID string, sess *session.Session, cmd Command) []Reply {
	docs, ok := documentsKinds[cmd.Kind]
	if !ok {
		return []Reply{{Text: textPickOption, Menu: MenuDocuments}}
	}

	p, err := e.store.UpdateFilters(ctx, userID, func(f *tracker.Filters) { f.Documents = docs })
	if err != nil {
		return e.saveFailed(userID, "update_documents", err, MenuDocuments)
	}
	sess.State = session.FilterMenu
	return []Reply{{Text: "✅ Documents filter set!\n\n" + filtersSummary(p.Filters), Menu: MenuFilters}}
}
