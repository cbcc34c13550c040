package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maremma/maremma/internal/checks"
	"github.com/maremma/maremma/internal/store"
)

type stubNotifier struct {
	name      string
	runStates map[store.CheckStatus]bool
	err       error
	called    int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) RunStates() map[store.CheckStatus]bool { return s.runStates }

func (s *stubNotifier) Execute(context.Context, store.ServiceCheck, store.Service, checks.Result) error {
	s.called++
	return s.err
}

func TestDispatchSkipsNotifierNotArmedForStatus(t *testing.T) {
	n := &stubNotifier{name: "a", runStates: map[store.CheckStatus]bool{store.StatusCritical: true}}
	result := checks.Result{Status: store.StatusOK}

	Dispatch(context.Background(), slog.Default(), []Notifier{n}, store.ServiceCheck{}, store.Service{}, result)

	assert.Zero(t, n.called)
}

func TestDispatchRunsArmedNotifierAndSurvivesItsError(t *testing.T) {
	failing := &stubNotifier{name: "failing", runStates: map[store.CheckStatus]bool{store.StatusCritical: true}, err: errors.New("boom")}
	ok := &stubNotifier{name: "ok", runStates: map[store.CheckStatus]bool{store.StatusCritical: true}}
	result := checks.Result{Status: store.StatusCritical}

	Dispatch(context.Background(), slog.Default(), []Notifier{failing, ok}, store.ServiceCheck{}, store.Service{}, result)

	assert.Equal(t, 1, failing.called)
	assert.Equal(t, 1, ok.called)
}
