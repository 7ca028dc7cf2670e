package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"UnionWins/internal/domain"
)

func TestParseResearchOutput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		items int
		ok    bool
	}{
		{name: "bare array", input: `[{"title":"a"},{"title":"b"}]`, items: 2, ok: true},
		{name: "json fence", input: "Results:\n```json\n[{\"title\":\"a\"}]\n```\nDone.", items: 1, ok: true},
		{name: "plain fence", input: "```\n[]\n```", items: 0, ok: true},
		{name: "surrounding prose", input: `I found these wins: [{"title":"a"}] and nothing else.`, items: 1, ok: true},
		{name: "no array", input: "Sorry, nothing this week.", ok: false},
		{name: "truncated", input: `[{"title":"a"},{"title":`, ok: false},
		{name: "object not array", input: `{"title":"a"}`, ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res := ParseResearchOutput(tc.input)
			assert.Equal(t, tc.ok, res.OK())
			if tc.ok {
				assert.Len(t, res.Items, tc.items)
			} else {
				assert.Error(t, res.Err)
				assert.NotEmpty(t, res.Fragment)
			}
		})
	}
}

func TestIngestRepairsOnce(t *testing.T) {
	t.Parallel()

	clock := newClock()
	store := newTestStore(t, clock)
	sess := openSession(t, store)

	repairer := &stubRepairer{
		out: `[{"title":"Cleaners win living wage","union_name":"UVW","date":"2025-06-02","url":"https://news.example.org/cleaners","summary":"Cleaners now earn the living wage."}]`,
	}
	ingester := NewResultIngester(ResultIngesterDeps{
		Repairer:      repairer,
		Logger:        discard,
		InitialStatus: domain.WinApproved,
	})

	n, err := ingester.Ingest(context.Background(), sess, `[{"title":"Cleaners win living wage",}`)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, repairer.Calls())
	assert.Equal(t, `[{"title":"Cleaners win living wage",}`, repairer.inputs[0])

	wins, err := sess.ListWins(context.Background(), domain.WinApproved, 0)
	require.NoError(t, err)
	require.Len(t, wins, 1)
	assert.Equal(t, "✊", wins[0].Emoji)
	assert.Equal(t, domain.OriginAutoResearch, wins[0].SubmittedBy)
}

func TestIngestReturnsOriginalErrorWhenRepairStillBroken(t *testing.T) {
	t.Parallel()

	clock := newClock()
	store := newTestStore(t, clock)
	sess := openSession(t, store)

	repairer := &stubRepairer{out: "still not json"}
	ingester := NewResultIngester(ResultIngesterDeps{Repairer: repairer, Logger: discard})

	original := ParseResearchOutput("[{broken")
	require.False(t, original.OK())

	n, err := ingester.Ingest(context.Background(), sess, "[{broken")
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, original.Err.Error(), err.Error())
	assert.Equal(t, 1, repairer.Calls())
}

func TestIngestSkipsInvalidAndDuplicateItems(t *testing.T) {
	t.Parallel()

	clock := newClock()
	store := newTestStore(t, clock)
	sess := openSession(t, store)
	seedWin(t, sess, "https://news.example.org/dup")

	output := `[
		{"title":"Valid","date":"2025-06-01","url":"https://news.example.org/valid","summary":"ok"},
		{"title":"Duplicate","date":"2025-06-01","url":"https://news.example.org/dup","summary":"ok"},
		{"title":"","date":"2025-06-01","url":"https://news.example.org/untitled","summary":"ok"},
		{"title":"No url","date":"2025-06-01","summary":"ok"},
		"not an object",
		{"title":"Also valid","date":"2025-06-02","url":"https://news.example.org/valid-2","summary":"ok"}
	]`

	repairer := &stubRepairer{}
	ingester := NewResultIngester(ResultIngesterDeps{Repairer: repairer, Logger: discard, InitialStatus: "bogus"})

	n, err := ingester.Ingest(context.Background(), sess, output)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, repairer.Calls())

	wins, err := sess.ListWins(context.Background(), domain.WinPending, 0)
	require.NoError(t, err)
	assert.Len(t, wins, 2)
}

type blockingRepairer struct {
	hadDeadline bool
}

func (r *blockingRepairer) Repair(ctx context.Context, _ string) (string, error) {
	_, r.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestIngestBoundsRepairCall(t *testing.T) {
	t.Parallel()

	clock := newClock()
	store := newTestStore(t, clock)
	sess := openSession(t, store)

	repairer := &blockingRepairer{}
	ingester := NewResultIngester(ResultIngesterDeps{
		Repairer:    repairer,
		Logger:      discard,
		CallTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	n, err := ingester.Ingest(context.WithoutCancel(context.Background()), sess, "not json at all")
	require.Error(t, err)
	assert.Zero(t, n)
	assert.True(t, repairer.hadDeadline)
	assert.Less(t, time.Since(start), 2*time.Second)
}
