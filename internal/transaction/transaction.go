// Package transaction implements Pahkat's transaction planner and processor
// (spec §4.8): dependency expansion, contradiction detection, status-based
// filtering, and sequential execution with between-action cancellation,
// ported from original_source/pahkat-client-core/src/transaction.rs.
package transaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/divvun/pahkat/internal/resolve"
	"github.com/divvun/pahkat/internal/store"
	"github.com/divvun/pahkat/pkg/event"
	"github.com/divvun/pahkat/pkg/pkgkey"
	"github.com/divvun/pahkat/pkg/query"
	"github.com/divvun/pahkat/pkg/version"
)

// ActionType is the kind of change a PackageAction requests.
type ActionType int

const (
	ActionInstall ActionType = iota
	ActionUninstall
)

func (a ActionType) String() string {
	if a == ActionUninstall {
		return "uninstall"
	}
	return "install"
}

// PackageAction is a single requested change (original_source's
// PackageAction<T>, generalized over T since every backend in this module
// shares one Scope type rather than a per-platform target type).
type PackageAction struct {
	Key    pkgkey.Key
	Action ActionType
	Scope  store.Scope
}

func (a PackageAction) isInstall() bool   { return a.Action == ActionInstall }
func (a PackageAction) isUninstall() bool { return a.Action == ActionUninstall }

// Error is PackageTransactionError (spec §7 / original_source transaction.rs).
type Error struct {
	Reason string
	Key    string
	Err    error
}

const (
	ErrNoPackage           = "no_package"
	ErrDeps                = "deps"
	ErrActionContradiction = "action_contradiction"
	ErrInvalidStatus       = "invalid_status"
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transaction: %s: %s: %v", e.Reason, e.Key, e.Err)
	}
	return fmt.Sprintf("transaction: %s: %s", e.Reason, e.Key)
}
func (e *Error) Unwrap() error { return e.Err }

// Transaction is a planned, filtered sequence of actions ready to process
// (original_source's PackageTransaction<T>).
type Transaction struct {
	id      uuid.UUID
	store   store.PackageStore
	actions []PackageAction
	logger  *slog.Logger
}

// New plans a transaction: expands install actions' dependencies, rejects
// contradictory install/uninstall pairs on the same key, and drops actions
// already satisfied by the current status (spec §4.8 "plan").
func New(s store.PackageStore, actions []PackageAction, logger *slog.Logger) (*Transaction, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var expanded []PackageAction

	for _, action := range actions {
		pkg, ok := s.FindPackageByKey(action.Key)
		if !ok || pkg.Concrete == nil {
			return nil, &Error{Reason: ErrNoPackage, Key: action.Key.String()}
		}

		if action.isInstall() {
			deps, err := transitiveDependencies(s, action.Key)
			if err != nil {
				return nil, &Error{Reason: ErrDeps, Key: action.Key.String(), Err: err}
			}
			for _, depKey := range deps {
				if !containsKey(expanded, depKey) {
					expanded = append(expanded, PackageAction{Key: depKey, Action: ActionInstall, Scope: action.Scope})
				}
			}
		}

		if existing, ok := findAction(expanded, action.Key); ok {
			if existing.Action != action.Action {
				return nil, &Error{Reason: ErrActionContradiction, Key: action.Key.String()}
			}
		} else {
			expanded = append(expanded, action)
		}
	}

	installs := make(map[string]bool)
	uninstalls := make(map[string]bool)
	for _, a := range expanded {
		idKey := a.Key.String()
		if a.isInstall() {
			installs[idKey] = true
		} else {
			uninstalls[idKey] = true
		}
	}
	for idKey := range installs {
		if uninstalls[idKey] {
			return nil, &Error{Reason: ErrActionContradiction, Key: idKey}
		}
	}

	var filtered []PackageAction
	for _, a := range expanded {
		status, err := s.Status(a.Key, a.Scope)
		if err != nil {
			return nil, &Error{Reason: ErrInvalidStatus, Key: a.Key.String(), Err: err}
		}

		isValid := status != version.UpToDate
		if a.isUninstall() {
			isValid = status == version.UpToDate || status == version.RequiresUpdate
		}
		if isValid {
			filtered = append(filtered, a)
		}
	}

	logger.Debug("planned transaction", slog.Int("action_count", len(filtered)))

	return &Transaction{
		id:      uuid.New(),
		store:   s,
		actions: filtered,
		logger:  logger,
	}, nil
}

// transitiveDependencies resolves key's full dependency graph via
// resolve.ResolvePackageQuery (spec §4.5 resolve_package_query: transitive,
// cycle-safe via a visited set) and returns every dependency it names other
// than key itself, ordered so that a dependency always precedes anything
// that depends on it (original_source's find_package_dependencies walks the
// same graph depth-first and appends on the way back up).
func transitiveDependencies(s store.PackageStore, key pkgkey.Key) ([]pkgkey.Key, error) {
	candidates, err := resolve.ResolvePackageQuery(s.Repos(), []pkgkey.Key{key}, query.FromKey(key))
	if err != nil {
		return nil, err
	}

	byID := make(map[string]resolve.ResolvedCandidate, len(candidates))
	for _, c := range candidates {
		byID[c.Key.ID] = c
	}

	var ordered []pkgkey.Key
	visited := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		c, ok := byID[id]
		if !ok {
			return
		}
		for depID := range c.Payload.Target.Dependencies {
			visit(depID)
		}
		ordered = append(ordered, c.Key)
	}
	for _, c := range candidates {
		visit(c.Key.ID)
	}

	deps := make([]pkgkey.Key, 0, len(ordered))
	for _, k := range ordered {
		if !k.Equal(key) {
			deps = append(deps, k)
		}
	}
	return deps, nil
}

func findAction(actions []PackageAction, key pkgkey.Key) (PackageAction, bool) {
	for _, a := range actions {
		if a.Key.Equal(key) {
			return a, true
		}
	}
	return PackageAction{}, false
}

func containsKey(actions []PackageAction, key pkgkey.Key) bool {
	_, ok := findAction(actions, key)
	return ok
}

// ID returns the transaction's correlation id, used to tag emitted events.
func (t *Transaction) ID() uuid.UUID { return t.id }

// Actions returns the planned, filtered action sequence.
func (t *Transaction) Actions() []PackageAction { return t.actions }

// Validate reports whether the transaction is safe to process. Always true
// today (original_source's `validate` is likewise a stub returning true);
// kept as a seam for future invariant checks.
func (t *Transaction) Validate() bool { return true }

// Process executes the transaction's actions sequentially, emitting an
// Event before each install/uninstall call, downloading an install
// action's payload through the store (which returns at once when it is
// already cached) before installing it, and stopping (without running
// remaining actions) the moment sink returns false (spec §4.8 "process":
// "single-threaded, sequential; a cancellation takes effect between
// actions, never mid-action").
func (t *Transaction) Process(sink event.Sink) error {
	if !t.Validate() {
		return fmt.Errorf("transaction: validation failed")
	}

	for _, action := range t.actions {
		t.logger.Debug("processing action", slog.String("key", action.Key.String()), slog.String("action", action.Action.String()))

		kind := event.KindInstalling
		if action.isUninstall() {
			kind = event.KindUninstalling
		}
		if sink != nil && !sink(event.Event{Kind: kind, PackageKey: action.Key}) {
			return errCancelled
		}

		var err error
		switch action.Action {
		case ActionInstall:
			if _, err = t.store.Download(context.Background(), action.Key, nil); err == nil {
				_, err = t.store.Install(action.Key, action.Scope)
			}
		case ActionUninstall:
			_, err = t.store.Uninstall(action.Key, action.Scope)
		}
		if err != nil {
			t.logger.Error("action failed", slog.String("key", action.Key.String()), slog.Any("err", err))
			if sink != nil {
				sink(event.Event{Kind: event.KindError, PackageKey: action.Key, Err: err})
			}
			return err
		}
	}

	if sink != nil {
		sink(event.Event{Kind: event.KindCompleted})
	}
	return nil
}

var errCancelled = fmt.Errorf("transaction: cancelled by caller")
