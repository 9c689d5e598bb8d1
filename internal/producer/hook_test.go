package producer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	"github.com/jmehdipour/staffing-awards/internal/syncer"
	"github.com/jmehdipour/staffing-awards/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	hook     *Hook
	outboxes map[model.Target]*testutil.MemoryOutbox
	fakes    map[model.Target]*testutil.FakeAdapter
	notified *notifierSpy
}

type notifierSpy struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *notifierSpy) Notify(_ context.Context, target model.Target, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, target.String()+":"+id)
	return n.err
}

func newEnv(t *testing.T, inline bool) *env {
	t.Helper()
	e := &env{
		outboxes: map[model.Target]*testutil.MemoryOutbox{},
		fakes:    map[model.Target]*testutil.FakeAdapter{},
		notified: &notifierSpy{},
	}
	var (
		stores  []repository.OutboxRepository
		runners []*syncer.Runner
	)
	for _, target := range model.Targets {
		ob := testutil.NewMemoryOutbox(target, 3)
		fake := testutil.NewFakeAdapter(target)
		e.outboxes[target] = ob
		e.fakes[target] = fake
		stores = append(stores, ob)
		runners = append(runners, syncer.NewRunner(ob, fake, nil, zap.NewNop(), syncer.Options{Year: "2026"}))
	}
	e.hook = NewHook(stores, runners, e.notified, zap.NewNop(), Options{Inline: inline})
	return e
}

func sampleNomination() (model.Nomination, model.Nominator, model.Nominee) {
	return model.Nomination{ID: "01NOM", SubcategoryID: "top-recruiter"},
		model.Nominator{ID: "01NR", Email: "nina@example.com", Firstname: "Nina"},
		model.Nominee{ID: "01NE", Type: model.NomineePerson, Firstname: "Jane", Lastname: "Doe", Email: "jane@example.com"}
}

func TestOnNominationSubmitted_EnqueuesToBothAndPushesInline(t *testing.T) {
	e := newEnv(t, true)
	nom, nominator, nominee := sampleNomination()

	require.NoError(t, e.hook.OnNominationSubmitted(context.Background(), nom, nominator, nominee))

	for _, target := range model.Targets {
		rows := e.outboxes[target].All()
		require.Len(t, rows, 1, target)
		assert.Equal(t, model.EventNominationSubmitted, rows[0].EventType)
		assert.Equal(t, model.OutboxDone, rows[0].Status, target)
		assert.NotContains(t, string(rows[0].Payload), "jane@example.com")

		_, ok := e.fakes[target].Contact("nina@example.com")
		assert.True(t, ok, target)
		_, ok = e.fakes[target].Contact("jane@example.com")
		assert.False(t, ok, target)
	}
	assert.Len(t, e.notified.calls, 2)
}

func TestOnNominationApproved_InlineChainsLiveUpdate(t *testing.T) {
	e := newEnv(t, true)
	nom, nominator, nominee := sampleNomination()

	require.NoError(t, e.hook.OnNominationApproved(context.Background(), nom, nominee, &nominator, "https://worldstaffingawards.com/nominee/01NOM"))

	fake := e.fakes[model.TargetHubSpot]
	assert.Equal(t, []string{"contact:jane@example.com", "contact:nina@example.com"}, fake.Calls())
	c, _ := fake.Contact("nina@example.com")
	assert.Equal(t, "https://worldstaffingawards.com/nominee/01NOM", c.NomineeURL)
}

func TestPush_FailureIsSwallowedAndRowStaysPending(t *testing.T) {
	e := newEnv(t, true)
	e.fakes[model.TargetLoops].Fail = func(string, string) error { return errors.New("loops is down") }
	e.notified.err = errors.New("kafka unavailable")
	nom, _, nominee := sampleNomination()
	voter := model.Voter{Email: "vic@example.com"}

	require.NoError(t, e.hook.OnVoteCast(context.Background(), model.Vote{NominationID: nom.ID, SubcategoryID: nom.SubcategoryID}, voter, nominee))

	loops := e.outboxes[model.TargetLoops].All()
	require.Len(t, loops, 1)
	assert.Equal(t, model.OutboxPending, loops[0].Status)
	assert.Equal(t, 1, loops[0].AttemptCount)
	assert.Contains(t, loops[0].LastError, "loops is down")

	hub := e.outboxes[model.TargetHubSpot].All()
	require.Len(t, hub, 1)
	assert.Equal(t, model.OutboxDone, hub[0].Status)
}

func TestPush_InlineDisabledLeavesRowsForTheRunner(t *testing.T) {
	e := newEnv(t, false)
	nom, nominator, nominee := sampleNomination()

	require.NoError(t, e.hook.OnNominationSubmitted(context.Background(), nom, nominator, nominee))

	for _, target := range model.Targets {
		rows := e.outboxes[target].All()
		require.Len(t, rows, 1)
		assert.Equal(t, model.OutboxPending, rows[0].Status)
		assert.Empty(t, e.fakes[target].Calls())
	}
	assert.Len(t, e.notified.calls, 2)
}

type blockingNotifier struct {
	mu        sync.Mutex
	calls     int
	deadlines int
}

// Notify behaves like a writer whose broker never answers.
func (b *blockingNotifier) Notify(ctx context.Context, _ model.Target, _ string) error {
	b.mu.Lock()
	b.calls++
	if _, ok := ctx.Deadline(); ok {
		b.deadlines++
	}
	b.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func TestPush_StuckBrokerDoesNotHoldTheCaller(t *testing.T) {
	e := newEnv(t, true)
	stuck := &blockingNotifier{}
	e.hook.notifier = stuck
	e.hook.opts.NotifyTimeout = 50 * time.Millisecond
	nom, nominator, nominee := sampleNomination()

	done := make(chan error, 1)
	go func() {
		done <- e.hook.OnNominationSubmitted(context.Background(), nom, nominator, nominee)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submission held by the trigger publish")
	}

	assert.Equal(t, 2, stuck.calls)
	assert.Equal(t, 2, stuck.deadlines)
	// inline delivery still ran after the publish gave up
	for _, target := range model.Targets {
		rows := e.outboxes[target].All()
		require.Len(t, rows, 1)
		assert.Equal(t, model.OutboxDone, rows[0].Status)
	}
}

func TestEnqueue_InvalidPayloadWritesNothing(t *testing.T) {
	e := newEnv(t, true)

	_, err := e.hook.Enqueue(context.Background(), nil, model.VoteCast{Voter: model.Contact{Email: "bad"}})
	assert.ErrorIs(t, err, model.ErrInvalidPayload)
	for _, target := range model.Targets {
		assert.Empty(t, e.outboxes[target].All())
	}
}

func TestVoteCastPayload_UsesNomineeDisplayName(t *testing.T) {
	company := model.Nominee{Type: model.NomineeCompany, CompanyName: "Acme Staffing"}
	p := VoteCast(model.Vote{SubcategoryID: "best-agency", NominationID: "01N"}, model.Voter{Email: "v@example.com"}, company)

	assert.Equal(t, "Acme Staffing", p.VotedForDisplayName)
	assert.NoError(t, p.Validate())
}
