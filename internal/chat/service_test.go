package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/pricechat/internal/catalog"
	"github.com/eldtechnologies/pricechat/internal/intent"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/rag"
	"github.com/eldtechnologies/pricechat/internal/retrieval"
	"github.com/eldtechnologies/pricechat/internal/store"
)

// echoAnswerer replies with the message it got and records what it saw.
type echoAnswerer struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
	mu       sync.Mutex
	seen     [][]models.Message
}

func (a *echoAnswerer) Answer(ctx context.Context, history []models.Message, message string) rag.Reply {
	a.calls.Add(1)
	if a.inFlight.Add(1) > 1 {
		a.overlap.Store(true)
	}
	defer a.inFlight.Add(-1)
	time.Sleep(a.delay)

	a.mu.Lock()
	a.seen = append(a.seen, history)
	a.mu.Unlock()
	return rag.Reply{Content: "echo: " + message, Type: models.TypeText}
}

func newTestService(t *testing.T) (*Service, *echoAnswerer, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	a := &echoAnswerer{}
	return NewService(st, a, zerolog.Nop()), a, st
}

func TestHistoryHasTwoMessagesPerTurn(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, msg := range []string{"một", "hai", "ba"} {
		_, err := svc.Send(ctx, "s1", msg)
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 6)
	for i, msg := range []string{"một", "hai", "ba"} {
		assert.Equal(t, models.RoleUser, history[2*i].Role)
		assert.Equal(t, msg, history[2*i].Content)
		assert.Equal(t, models.RoleAssistant, history[2*i+1].Role)
		assert.Equal(t, "echo: "+msg, history[2*i+1].Content)
	}
}

func TestAnswererSeesPriorHistoryOnly(t *testing.T) {
	svc, a, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Send(ctx, "s1", "một")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "s1", "hai")
	require.NoError(t, err)

	require.Len(t, a.seen, 2)
	assert.Empty(t, a.seen[0])
	assert.Len(t, a.seen[1], 2)
}

func TestSendAssignsSessionID(t *testing.T) {
	svc, _, _ := newTestService(t)

	resp, err := svc.Send(context.Background(), "", "xin chào")
	require.NoError(t, err)
	assert.Len(t, resp.SessionID, 36)
	assert.NoError(t, ValidateSessionID(resp.SessionID))
	assert.Equal(t, models.RoleAssistant, resp.Message.Role)
	assert.NotEmpty(t, resp.Message.ID)
}

func TestResetStartsFresh(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Send(ctx, "s1", "iphone 15")
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx, "s1"))
	require.NoError(t, svc.Reset(ctx, "s1"), "reset is idempotent")

	history, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, intent.Welcome, svc.Welcome())
}

func TestHistoryOfUnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t)

	history, err := svc.History(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestRejectsInvalidInputBeforeBackends(t *testing.T) {
	svc, a, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Send(ctx, "s1", strings.Repeat("a", 501))
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "message", verr.Field)

	_, err = svc.Send(ctx, "bad id!", "hi")
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "session_id", verr.Field)

	_, err = svc.History(ctx, strings.Repeat("x", 65))
	assert.True(t, errors.As(err, &verr))
	assert.True(t, errors.As(svc.Reset(ctx, "a/b"), &verr))

	assert.Equal(t, int32(0), a.calls.Load())
	_, err = st.Get(ctx, "s1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestMessageLengthCountsCharacters(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Send(context.Background(), "s1", strings.Repeat("đ", MaxMessageLength))
	assert.NoError(t, err)
}

func TestMessageLengthIncludesSurroundingWhitespace(t *testing.T) {
	svc, a, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Send(ctx, "s1", strings.Repeat("a", MaxMessageLength)+" ")
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "message", verr.Field)
	assert.Contains(t, verr.Message, "got 501")

	assert.Equal(t, int32(0), a.calls.Load())
	_, err = st.Get(ctx, "s1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	svc, a, _ := newTestService(t)
	a.delay = 20 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, msg := range []string{"một", "hai"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Send(ctx, "s1", msg)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, a.overlap.Load())
	history, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "echo: "+history[0].Content, history[1].Content)
	assert.Equal(t, models.RoleUser, history[2].Role)
	assert.Equal(t, "echo: "+history[2].Content, history[3].Content)
	assert.Equal(t, 0, svc.locks.size())
}

func TestConcurrentSendsOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	a := &echoAnswerer{delay: 10 * time.Millisecond}
	svc := NewService(store.NewRedisStoreFromClient(client, time.Hour), a, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Send(ctx, "redis-1", "iphone")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := svc.History(ctx, "redis-1")
	require.NoError(t, err)
	require.Len(t, history, 6)
	for i, m := range history {
		if i%2 == 0 {
			assert.Equal(t, models.RoleUser, m.Role)
		} else {
			assert.Equal(t, models.RoleAssistant, m.Role)
		}
	}
}

func TestSessionLocksAreIndependent(t *testing.T) {
	l := newSessionLocks()
	unlockA := l.lock("a")

	done := make(chan struct{})
	go func() {
		unlock := l.lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b waited for a")
	}
	unlockA()
	assert.Equal(t, 0, l.size())
}

func TestSendCompareExample(t *testing.T) {
	mem, err := catalog.NewMemoryCatalog(
		models.Product{ID: "iphone-15", Name: "iPhone 15", Brand: "Apple", Sources: []models.Source{{Name: "FPT Shop", Price: 19_990_000}}},
		models.Product{ID: "galaxy-s24", Name: "Galaxy S24", Brand: "Samsung", Sources: []models.Source{{Name: "Tiki", Price: 20_990_000}}},
	)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	rules, err := intent.NewRules(mem, time.Minute, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(rules.Close)

	gw, err := retrieval.NewGateway(mem, []retrieval.Strategy{retrieval.CatalogStrategy{Catalog: mem}}, retrieval.Options{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(gw.Close)

	svc := NewService(store.NewMemoryStore(), rag.New(rules, gw, nil, time.Second, zerolog.Nop()), zerolog.Nop())

	resp, err := svc.Send(context.Background(), "s1", "So sánh iPhone 15 và Galaxy S24")
	require.NoError(t, err)
	assert.Equal(t, models.TypeProductComparison, resp.Message.Type)
	data, ok := resp.Message.Data.(models.ProductComparisonData)
	require.True(t, ok)
	assert.Len(t, data.Products, 2)

	history, err := svc.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.TypeProductComparison, history[1].Type)
}
