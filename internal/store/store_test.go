package store

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/gateway"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

var (
	seedTime  = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	fixedNow  = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	fixedTime = func() time.Time { return fixedNow }
)

type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	list   func(ctx context.Context, call int) ([]domain.Ticket, error)
	create func(ctx context.Context, draft domain.TicketDraft) (domain.Ticket, error)
	update func(ctx context.Context, id string, patch domain.TicketPatch) (*domain.Ticket, error)
	del    func(ctx context.Context, id string) error
	chat   func(ctx context.Context, id, text string) (domain.Ticket, error)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: make(map[string]int)}
}

func (f *fakeGateway) record(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.calls[op]
}

func (f *fakeGateway) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeGateway) List(ctx context.Context) ([]domain.Ticket, error) {
	n := f.record("list")
	if f.list == nil {
		return nil, nil
	}
	return f.list(ctx, n)
}

func (f *fakeGateway) Create(ctx context.Context, draft domain.TicketDraft) (domain.Ticket, error) {
	f.record("create")
	if f.create == nil {
		return domain.Ticket{}, errors.New("create not configured")
	}
	return f.create(ctx, draft)
}

func (f *fakeGateway) Update(ctx context.Context, id string, patch domain.TicketPatch) (*domain.Ticket, error) {
	f.record("update")
	if f.update == nil {
		return nil, nil
	}
	return f.update(ctx, id, patch)
}

func (f *fakeGateway) Delete(ctx context.Context, id string) error {
	f.record("delete")
	if f.del == nil {
		return nil
	}
	return f.del(ctx, id)
}

func (f *fakeGateway) AppendChat(ctx context.Context, id, text string) (domain.Ticket, error) {
	f.record("chat")
	if f.chat == nil {
		return domain.Ticket{}, errors.New("chat not configured")
	}
	return f.chat(ctx, id, text)
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func seedTickets() []domain.Ticket {
	return []domain.Ticket{
		{
			ID: "t1", ClientName: "Ada", ClientEmail: "ada@example.com", ClientNumber: "0911000001",
			Description: "printer jam", Status: domain.TicketStatusPending,
			CreatedAt: seedTime, UpdatedAt: seedTime,
			Chat: []domain.ChatMessage{{Text: "hello", CreatedAt: seedTime}},
		},
		{
			ID: "t2", ClientName: "Grace", ClientNumber: "0911000002",
			Description: "vpn access", Status: domain.TicketStatusCompleted,
			CreatedAt: seedTime.Add(time.Hour), UpdatedAt: seedTime.Add(time.Hour),
		},
		{
			ID: "t3", ClientName: "Linus", ClientNumber: "0911000003",
			Description: "laptop battery", Status: domain.TicketStatusPending,
			CreatedAt: seedTime.Add(2 * time.Hour), UpdatedAt: seedTime.Add(2 * time.Hour),
		},
	}
}

func newLoadedStore(t *testing.T, gw *fakeGateway, opts Options) *Store {
	t.Helper()
	if gw.list == nil {
		gw.list = func(context.Context, int) ([]domain.Ticket, error) { return seedTickets(), nil }
	}
	if opts.Clock == nil {
		opts.Clock = fixedTime
	}
	s := New(gw, opts)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func ids(tickets []domain.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}

func strPtr(s string) *string { return &s }

func statusPtr(s domain.TicketStatus) *domain.TicketStatus { return &s }

func TestLoadReplacesCollection(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedStore(t, gw, Options{})

	if !s.Loaded() {
		t.Fatal("expected store to report loaded")
	}
	if s.Loading() {
		t.Fatal("expected loading flag to be cleared")
	}
	if got := ids(s.FilteredView(domain.FilterAll)); !reflect.DeepEqual(got, []string{"t1", "t2", "t3"}) {
		t.Fatalf("unexpected ids %v", got)
	}
}

func TestLoadFailureLeavesStateUntouched(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedStore(t, gw, Options{})
	before := s.FilteredView(domain.FilterAll)

	gw.list = func(context.Context, int) ([]domain.Ticket, error) { return nil, errors.New("connection reset") }
	err := s.Load(context.Background())
	if !apperrors.HasCode(err, apperrors.CodeFetchFailed) {
		t.Fatalf("expected FETCH_FAILED, got %v", err)
	}
	if !apperrors.HasCause(err, apperrors.CauseTransport) {
		t.Errorf("expected TRANSPORT cause, got %v", err)
	}
	if s.Loading() {
		t.Error("expected loading flag cleared after failure")
	}
	if after := s.FilteredView(domain.FilterAll); !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed after failed load")
	}
}

func TestLoadingFlagWhileInFlight(t *testing.T) {
	gw := newFakeGateway()
	started := make(chan struct{})
	release := make(chan struct{})
	gw.list = func(context.Context, int) ([]domain.Ticket, error) {
		close(started)
		<-release
		return seedTickets(), nil
	}
	s := New(gw, Options{})

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background()) }()
	<-started
	if !s.Loading() {
		t.Error("expected loading while request in flight")
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Loading() {
		t.Error("expected loading cleared after completion")
	}
}

func TestLoadDropsDuplicateIDs(t *testing.T) {
	gw := newFakeGateway()
	gw.list = func(context.Context, int) ([]domain.Ticket, error) {
		tickets := seedTickets()
		dup := tickets[0]
		dup.ClientName = "Impostor"
		return append(tickets, dup), nil
	}
	s := newLoadedStore(t, gw, Options{})

	view := s.FilteredView(domain.FilterAll)
	if len(view) != 3 {
		t.Fatalf("expected 3 tickets after dedupe, got %d", len(view))
	}
	if view[0].ClientName != "Ada" {
		t.Errorf("expected first occurrence to win, got %q", view[0].ClientName)
	}
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	gw := newFakeGateway()
	gates := []chan []domain.Ticket{make(chan []domain.Ticket), make(chan []domain.Ticket)}
	started := make(chan int, 2)
	gw.list = func(_ context.Context, call int) ([]domain.Ticket, error) {
		started <- call
		return <-gates[call-1], nil
	}
	s := New(gw, Options{})
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- s.Load(ctx) }()
	if n := <-started; n != 1 {
		t.Fatalf("expected first call, got %d", n)
	}
	second := make(chan error, 1)
	go func() { second <- s.Load(ctx) }()
	if n := <-started; n != 2 {
		t.Fatalf("expected second call, got %d", n)
	}

	newer := seedTickets()[1:]
	older := seedTickets()[:1]
	gates[1] <- newer
	if err := <-second; err != nil {
		t.Fatalf("second load: %v", err)
	}
	gates[0] <- older
	if err := <-first; err != nil {
		t.Fatalf("stale load should be discarded silently, got %v", err)
	}

	if got := ids(s.FilteredView(domain.FilterAll)); !reflect.DeepEqual(got, []string{"t2", "t3"}) {
		t.Fatalf("expected newer load to win, got %v", got)
	}
	if s.Loading() {
		t.Error("expected loading cleared once both loads settled")
	}
}

func TestFilteredViewPreservesOrderAndIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedStore(t, gw, Options{})

	all := s.FilteredView(domain.FilterAll)
	if got := ids(all); !reflect.DeepEqual(got, []string{"t1", "t2", "t3"}) {
		t.Fatalf("unexpected All view %v", got)
	}
	pending := s.FilteredView(domain.FilterPending)
	if got := ids(pending); !reflect.DeepEqual(got, []string{"t1", "t3"}) {
		t.Fatalf("unexpected Pending view %v", got)
	}
	completed := s.FilteredView(domain.FilterCompleted)
	if got := ids(completed); !reflect.DeepEqual(got, []string{"t2"}) {
		t.Fatalf("unexpected Completed view %v", got)
	}
	if again := s.FilteredView(domain.FilterPending); !reflect.DeepEqual(pending, again) {
		t.Fatal("expected identical results without intervening mutation")
	}
}

func TestFilteredViewReturnsCopies(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedStore(t, gw, Options{})

	view := s.FilteredView(domain.FilterAll)
	view[0].ClientName = "mutated"
	view[0].Chat[0].Text = "mutated"

	got, _ := s.Get("t1")
	if got.ClientName != "Ada" || got.Chat[0].Text != "hello" {
		t.Fatalf("store state leaked through view: %+v", got)
	}
}

func TestCreateValidationIssuesNoGatewayCalls(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedStore(t, gw, Options{})
	callsBefore := gw.total()

	cases := []domain.TicketDraft{
		{ClientName: "", ClientNumber: "x", Description: "x"},
		{ClientName: "x", ClientNumber: "   ", Description: "x"},
		{ClientName: "x", ClientNumber: "x", Description: "\t"},
		{ClientName: "x", ClientNumber: "x", Description: "x", Status: "Archived"},
	}
	for _, draft := range cases {
		if _, err := s.Create(context.Background(), draft); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
			t.Errorf("draft %+v: expected VALIDATION_FAILED, got %v", draft, err)
		}
	}
	if gw.total() != callsBefore {
		t.Fatalf("expected zero gateway calls, got %d", gw.total()-callsBefore)
	}
}

func TestCreateAppendsServerTicket(t *testing.T) {
	gw := newFakeGateway()
	var sent domain.TicketDraft
	gw.create = func(_ context.Context, draft domain.TicketDraft) (domain.Ticket, error) {
		sent = draft
		return domain.Ticket{
			ID: "srv-9", ClientName: draft.ClientName, ClientNumber: draft.ClientNumber,
			Description: draft.Description, Status: draft.Status, CreatedAt: fixedNow,
		}, nil
	}
	s := newLoadedStore(t, gw, Options{})

	created, err := s.Create(context.Background(), domain.TicketDraft{
		ClientName: "  Alan ", ClientNumber: "0911000004", Description: "new monitor",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sent.ClientName != "Alan" || sent.Status != domain.TicketStatusPending {
		t.Errorf("expected trimmed draft with default status, got %+v", sent)
	}
	if created.ID != "srv-9" || !created.CreatedAt.Equal(fixedNow) {
		t.Errorf("expected server assigned id and createdAt, got %+v", created)
	}
	if got := ids(s.FilteredView(domain.FilterAll)); !reflect.DeepEqual(got, []string{"t1", "t2", "t3", "srv-9"}) {
		t.Fatalf("unexpected ids %v", got)
	}
}

func TestCreateFailureLeavesStateUnchanged(t *testing.T) {
	gw := newFakeGateway()
	gw.create = func(context.Context, domain.TicketDraft) (domain.Ticket, error) {
		return domain.Ticket{}, gateway.ErrRejected
	}
	s := newLoadedStore(t, gw, Options{})
	before := s.FilteredView(domain.FilterAll)

	_, err := s.Create(context.Background(), domain.TicketDraft{ClientName: "a", ClientNumber: "b", Description: "c"})
	if !apperrors.HasCode(err, apperrors.CodeCreateFailed) || !apperrors.HasCause(err, apperrors.CauseGateway) {
		t.Fatalf("expected CREATE_FAILED with GATEWAY cause, got %v", err)
	}
	if after := s.FilteredView(domain.FilterAll); !reflect.DeepEqual(before, after) {
		t.Fatal("state changed after failed create")
	}
}

func TestUpdateIsOptimisticAndRollsBackExactly(t *testing.T) {
	gw := newFakeGateway()
	started := make(chan struct{})
	release := make(chan error)
	gw.update = func(context.Context, string, domain.TicketPatch) (*domain.Ticket, error) {
		close(started)
		return nil, <-release
	}
	s := newLoadedStore(t, gw, Options{})
	original, _ := s.Get("t1")

	done := make(chan error, 1)
	go func() {
		_, err := s.Update(context.Background(), "t1", domain.TicketPatch{
			ClientName: strPtr("Ada Lovelace"),
			Status:     statusPtr(domain.TicketStatusCompleted),
		})
		done <- err
	}()
	<-started

	optimistic, _ := s.Get("t1")
	if optimistic.ClientName != "Ada Lovelace" || optimistic.Status != domain.TicketStatusCompleted {
		t.Fatalf("expected optimistic patch visible, got %+v", optimistic)
	}
	if !optimistic.UpdatedAt.Equal(fixedNow) {
		t.Errorf("expected optimistic updatedAt %v, got %v", fixedNow, optimistic.UpdatedAt)
	}
	if !s.InFlight("t1") {
		t.Error("expected t1 in flight")
	}

	release <- &gateway.StatusError{StatusCode: 500, Message: "boom"}
	err := <-done
	if !apperrors.HasCode(err, apperrors.CodeUpdateFailed) || !apperrors.HasCause(err, apperrors.CauseGateway) {
		t.Fatalf("expected UPDATE_FAILED with GATEWAY cause, got %v", err)
	}
	restored, _ := s.Get("t1")
	if !reflect.DeepEqual(original, restored) {
		t.Fatalf("rollback mismatch:\nwant %+v\ngot  %+v", original, restored)
	}
	if s.InFlight("t1") {
		t.Error("expected t1 settled")
	}
}

func TestUpdateReconcilesWithServerTicket(t *testing.T) {
	gw := newFakeGateway()
	serverTime := fixedNow.Add(3 * time.Second)
	gw.update = func(_ context.Context, id string, patch domain.TicketPatch) (*domain.Ticket, error) {
		ticket := seedTickets()[1]
		ticket.Description = *patch.Description
		ticket.UpdatedAt = serverTime
		return &ticket, nil
	}
	s := newLoadedStore(t, gw, Options{})

	got, err := s.Update(context.Background(), "t2", domain.TicketPatch{Description: strPtr("vpn access restored")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Description != "vpn access restored" || !got.UpdatedAt.Equal(serverTime) {
		t.Fatalf("expected server ticket, got %+v", got)
	}
	stored, _ := s.Get("t2")
	if !reflect.DeepEqual(stored, got) {
		t.Fatalf("store does not hold reconciled ticket: %+v", stored)
	}
}

func TestUpdateWithoutServerBodyKeepsPatch(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedStore(t, gw, Options{})

	got, err := s.Update(context.Background(), "t3", domain.TicketPatch{ClientEmail: strPtr("linus@example.com")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ClientEmail != "linus@example.com" || !got.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("expected patched ticket, got %+v", got)
	}
}

func TestUpdateValidation(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedStore(t, gw, Options{})
	callsBefore := gw.total()
	ctx := context.Background()

	if _, err := s.Update(ctx, "t1", domain.TicketPatch{ClientName: strPtr("  ")}); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED for blank name, got %v", err)
	}
	if _, err := s.Update(ctx, "t1", domain.TicketPatch{ClientNumber: strPtr("")}); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED for blank number, got %v", err)
	}
	if _, err := s.Update(ctx, "t1", domain.TicketPatch{Status: statusPtr("Archived")}); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED for bad status, got %v", err)
	}
	if _, err := s.Update(ctx, "missing", domain.TicketPatch{ClientName: strPtr("x")}); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
	if gw.total() != callsBefore {
		t.Fatalf("expected zero gateway calls, got %d", gw.total()-callsBefore)
	}
}

func TestSecondMutationOnSameTicketIsRejected(t *testing.T) {
	gw := newFakeGateway()
	started := make(chan struct{})
	release := make(chan struct{})
	gw.update = func(_ context.Context, id string, _ domain.TicketPatch) (*domain.Ticket, error) {
		if id == "t1" {
			close(started)
			<-release
		}
		return nil, nil
	}
	s := newLoadedStore(t, gw, Options{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.Update(ctx, "t1", domain.TicketPatch{Description: strPtr("first")})
		done <- err
	}()
	<-started

	if _, err := s.Update(ctx, "t1", domain.TicketPatch{Description: strPtr("second")}); !apperrors.HasCode(err, apperrors.CodeConflictPending) {
		t.Errorf("expected CONFLICT_PENDING for update, got %v", err)
	}
	if err := s.Delete(ctx, "t1"); !apperrors.HasCode(err, apperrors.CodeConflictPending) {
		t.Errorf("expected CONFLICT_PENDING for delete, got %v", err)
	}
	if _, err := s.Update(ctx, "t2", domain.TicketPatch{Description: strPtr("other ticket")}); err != nil {
		t.Errorf("expected other ticket to update freely, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first update: %v", err)
	}
	got, _ := s.Get("t1")
	if got.Description != "first" {
		t.Fatalf("expected first update to stick, got %q", got.Description)
	}
}

func TestUpdateTimeoutCause(t *testing.T) {
	gw := newFakeGateway()
	gw.update = func(ctx context.Context, _ string, _ domain.TicketPatch) (*domain.Ticket, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := newLoadedStore(t, gw, Options{Timeout: 20 * time.Millisecond})
	original, _ := s.Get("t2")

	_, err := s.Update(context.Background(), "t2", domain.TicketPatch{Description: strPtr("slow")})
	if !apperrors.HasCode(err, apperrors.CodeUpdateFailed) || !apperrors.IsTimeout(err) {
		t.Fatalf("expected UPDATE_FAILED with TIMEOUT cause, got %v", err)
	}
	if status := apperrors.ToDomainError(err).HTTPStatus; status != 504 {
		t.Errorf("expected 504 for timeout, got %d", status)
	}
	if got, _ := s.Get("t2"); !reflect.DeepEqual(original, got) {
		t.Fatal("expected rollback after timeout")
	}
}

func TestLoadDuringPendingUpdateReappliesDelta(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedStore(t, gw, Options{})

	started := make(chan struct{})
	release := make(chan struct{})
	gw.update = func(context.Context, string, domain.TicketPatch) (*domain.Ticket, error) {
		close(started)
		<-release
		return nil, nil
	}
	done := make(chan error, 1)
	go func() {
		_, err := s.Update(context.Background(), "t1", domain.TicketPatch{ClientName: strPtr("Countess")})
		done <- err
	}()
	<-started

	gw.list = func(context.Context, int) ([]domain.Ticket, error) {
		tickets := seedTickets()
		tickets[0].Description = "printer jam (escalated)"
		return tickets, nil
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	got, _ := s.Get("t1")
	if got.ClientName != "Countess" || got.Description != "printer jam (escalated)" {
		t.Fatalf("expected delta over new base, got %+v", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.Get("t1")
	if got.ClientName != "Countess" || got.Description != "printer jam (escalated)" {
		t.Fatalf("expected committed patch over new base, got %+v", got)
	}
}

func TestDeleteUndoRoundTrip(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedStore(t, gw, Options{})
	original, _ := s.Get("t2")
	ctx := context.Background()

	if err := s.Delete(ctx, "t2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := ids(s.FilteredView(domain.FilterAll)); !reflect.DeepEqual(got, []string{"t1", "t3"}) {
		t.Fatalf("unexpected ids after delete %v", got)
	}
	if last, ok := s.LastDeleted(); !ok || last.ID != "t2" {
		t.Fatalf("expected undo slot to hold t2, got %+v %v", last, ok)
	}

	restored, err := s.UndoLastDelete(ctx)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if !reflect.DeepEqual(original, restored) {
		t.Fatalf("undo mismatch:\nwant %+v\ngot  %+v", original, restored)
	}
	if got := ids(s.FilteredView(domain.FilterAll)); !reflect.DeepEqual(got, []string{"t1", "t2", "t3"}) {
		t.Fatalf("expected original position restored, got %v", got)
	}
	if _, err := s.UndoLastDelete(ctx); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected second undo to find nothing, got %v", err)
	}
}

func TestDeleteFailureRestoresPosition(t *testing.T) {
	gw := newFakeGateway()
	started := make(chan struct{})
	release := make(chan struct{})
	gw.del = func(context.Context, string) error {
		close(started)
		<-release
		return &gateway.StatusError{StatusCode: 401, Message: "token expired"}
	}
	s := newLoadedStore(t, gw, Options{})
	before := s.FilteredView(domain.FilterAll)

	done := make(chan error, 1)
	go func() { done <- s.Delete(context.Background(), "t2") }()
	<-started
	if _, ok := s.Get("t2"); ok {
		t.Error("expected ticket hidden while delete in flight")
	}
	close(release)

	err := <-done
	if !apperrors.HasCode(err, apperrors.CodeDeleteFailed) || !apperrors.IsUnauthorized(err) {
		t.Fatalf("expected DELETE_FAILED with UNAUTHORIZED cause, got %v", err)
	}
	if after := s.FilteredView(domain.FilterAll); !reflect.DeepEqual(before, after) {
		t.Fatal("expected ticket restored at its original position")
	}
	if _, ok := s.LastDeleted(); ok {
		t.Error("failed delete must not fill the undo slot")
	}
}

func TestUndoSlotClearedByOtherMutations(t *testing.T) {
	ctx := context.Background()

	t.Run("update", func(t *testing.T) {
		s := newLoadedStore(t, newFakeGateway(), Options{})
		if err := s.Delete(ctx, "t2"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Update(ctx, "t1", domain.TicketPatch{Description: strPtr("x")}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if _, ok := s.LastDeleted(); ok {
			t.Fatal("expected undo slot cleared by update")
		}
	})

	t.Run("second delete", func(t *testing.T) {
		s := newLoadedStore(t, newFakeGateway(), Options{})
		if err := s.Delete(ctx, "t2"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.Delete(ctx, "t3"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		last, ok := s.LastDeleted()
		if !ok || last.ID != "t3" {
			t.Fatalf("expected slot to hold the latest delete, got %+v", last)
		}
	})

	t.Run("load", func(t *testing.T) {
		s := newLoadedStore(t, newFakeGateway(), Options{})
		if err := s.Delete(ctx, "t2"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.Load(ctx); err != nil {
			t.Fatalf("load: %v", err)
		}
		if _, err := s.UndoLastDelete(ctx); !apperrors.HasCode(err, apperrors.CodeNotFound) {
			t.Fatalf("expected NOT_FOUND after load, got %v", err)
		}
	})
}

func TestUndoConflictsWithPresentTicket(t *testing.T) {
	s := newLoadedStore(t, newFakeGateway(), Options{})
	t1, _ := s.Get("t1")
	s.undo = &undoSlot{ticket: t1, index: 0}

	if _, err := s.UndoLastDelete(context.Background()); !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
	if _, ok := s.LastDeleted(); ok {
		t.Fatal("expected slot cleared after conflict")
	}
	if n := len(s.FilteredView(domain.FilterAll)); n != 3 {
		t.Fatalf("expected no insertion, got %d tickets", n)
	}
}

func TestAppendMessageFollowsAcknowledgementOrder(t *testing.T) {
	gw := newFakeGateway()
	var mu sync.Mutex
	serverChat := seedTickets()[0].Chat
	tick := seedTime
	gw.chat = func(_ context.Context, id, text string) (domain.Ticket, error) {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Minute)
		serverChat = append(serverChat, domain.ChatMessage{Text: text, CreatedAt: tick})
		ticket := seedTickets()[0]
		ticket.Chat = append([]domain.ChatMessage(nil), serverChat...)
		return ticket, nil
	}
	s := newLoadedStore(t, gw, Options{})
	ctx := context.Background()

	first, err := s.AppendMessage(ctx, "t1", "second typed, first sent")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := s.AppendMessage(ctx, "t1", "  first typed  ")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	got, _ := s.Get("t1")
	want := []domain.ChatMessage{{Text: "hello", CreatedAt: seedTime}, first, second}
	if !reflect.DeepEqual(got.Chat, want) {
		t.Fatalf("chat order mismatch:\nwant %+v\ngot  %+v", want, got.Chat)
	}
	if second.Text != "first typed" {
		t.Errorf("expected trimmed text, got %q", second.Text)
	}
}

func TestAppendMessageRejections(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedStore(t, gw, Options{})
	ctx := context.Background()
	callsBefore := gw.total()

	if _, err := s.AppendMessage(ctx, "t1", "   "); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED, got %v", err)
	}
	if _, err := s.AppendMessage(ctx, "nope", "hi"); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
	if gw.total() != callsBefore {
		t.Fatalf("expected zero gateway calls, got %d", gw.total()-callsBefore)
	}

	gw.chat = func(context.Context, string, string) (domain.Ticket, error) {
		ticket := seedTickets()[0]
		ticket.Chat = append(ticket.Chat, domain.ChatMessage{Text: "hi"})
		return ticket, nil
	}
	before, _ := s.Get("t1")
	if _, err := s.AppendMessage(ctx, "t1", "hi"); !apperrors.HasCode(err, apperrors.CodeChatSendFailed) {
		t.Errorf("expected CHAT_SEND_FAILED for untimestamped ack, got %v", err)
	}
	if after, _ := s.Get("t1"); !reflect.DeepEqual(before, after) {
		t.Fatal("chat changed after failed append")
	}
}

func TestStoreEventsFollowStateMachine(t *testing.T) {
	gw := newFakeGateway()
	gw.del = func(context.Context, string) error { return errors.New("dial tcp: refused") }
	dispatcher := events.NewInMemoryDispatcher()

	var mu sync.Mutex
	var seen []events.EventType
	var settled events.MutationPayload
	record := func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
		if p, ok := e.Payload.(events.MutationPayload); ok && p.State.Settled() {
			settled = p
		}
		return nil
	}
	events.SubscribeMany(dispatcher, record,
		events.EventMutationStarted, events.EventMutationCommitted,
		events.EventMutationRolledBack, events.EventMutationFailed)

	s := newLoadedStore(t, gw, Options{Dispatcher: dispatcher, SessionID: "sess-1"})
	_ = s.Delete(context.Background(), "t1")

	mu.Lock()
	defer mu.Unlock()
	want := []events.EventType{events.EventMutationStarted, events.EventMutationRolledBack}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	if settled.Kind != domain.MutationDelete || settled.Code != apperrors.CodeDeleteFailed || settled.Cause != apperrors.CauseTransport {
		t.Fatalf("unexpected settled payload %+v", settled)
	}
}

func TestUpdateOfTicketDroppedByLoadWithoutBody(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedStore(t, gw, Options{})

	started := make(chan struct{})
	release := make(chan struct{})
	gw.update = func(context.Context, string, domain.TicketPatch) (*domain.Ticket, error) {
		close(started)
		<-release
		return nil, nil
	}
	type result struct {
		ticket domain.Ticket
		err    error
	}
	done := make(chan result, 1)
	go func() {
		ticket, err := s.Update(context.Background(), "t1", domain.TicketPatch{Description: strPtr("gone")})
		done <- result{ticket, err}
	}()
	<-started

	gw.list = func(context.Context, int) ([]domain.Ticket, error) { return seedTickets()[1:], nil }
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	close(release)

	res := <-done
	if !apperrors.HasCode(res.err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got ticket %+v err %v", res.ticket, res.err)
	}
	if res.ticket.ID != "" {
		t.Errorf("expected no ticket, got %+v", res.ticket)
	}
	if _, ok := s.Get("t1"); ok {
		t.Error("expected t1 to stay absent")
	}
	if s.InFlight("t1") {
		t.Error("expected the delta to be released")
	}
}

func TestSettledEventsOutliveCallerDeadline(t *testing.T) {
	gw := newFakeGateway()
	gw.update = func(ctx context.Context, _ string, _ domain.TicketPatch) (*domain.Ticket, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	dispatcher := events.NewInMemoryDispatcher()
	var mu sync.Mutex
	var handlerErr error
	called := false
	dispatcher.Subscribe(events.EventMutationRolledBack, func(ctx context.Context, _ events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		called = true
		handlerErr = ctx.Err()
		return nil
	})
	s := newLoadedStore(t, gw, Options{Dispatcher: dispatcher, SessionID: "sess-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Update(ctx, "t1", domain.TicketPatch{Description: strPtr("slow")})
	if !apperrors.IsTimeout(err) {
		t.Fatalf("expected timeout failure, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !called {
		t.Fatal("expected rolled back event")
	}
	if handlerErr != nil {
		t.Fatalf("expected a live context in the settled handler, got %v", handlerErr)
	}
}

func TestFailedUpdateKeepsConcurrentEditOfOtherTicket(t *testing.T) {
	gw := newFakeGateway()
	started := make(chan struct{})
	release := make(chan struct{})
	gw.update = func(_ context.Context, id string, _ domain.TicketPatch) (*domain.Ticket, error) {
		if id == "t1" {
			close(started)
			<-release
			return nil, &gateway.StatusError{StatusCode: 500, Message: "boom"}
		}
		return nil, nil
	}
	s := newLoadedStore(t, gw, Options{})
	original, _ := s.Get("t1")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.Update(ctx, "t1", domain.TicketPatch{Description: strPtr("doomed")})
		done <- err
	}()
	<-started

	if _, err := s.Update(ctx, "t2", domain.TicketPatch{Description: strPtr("kept")}); err != nil {
		t.Fatalf("update t2: %v", err)
	}
	close(release)
	if err := <-done; !apperrors.HasCode(err, apperrors.CodeUpdateFailed) {
		t.Fatalf("expected UPDATE_FAILED for t1, got %v", err)
	}

	if got, _ := s.Get("t1"); !reflect.DeepEqual(original, got) {
		t.Fatalf("expected t1 rolled back exactly, got %+v", got)
	}
	if got, _ := s.Get("t2"); got.Description != "kept" {
		t.Fatalf("expected t2 edit to survive, got %q", got.Description)
	}
}

func TestUpdateTrimsPatchFields(t *testing.T) {
	gw := newFakeGateway()
	var sent domain.TicketPatch
	gw.update = func(_ context.Context, _ string, patch domain.TicketPatch) (*domain.Ticket, error) {
		sent = patch
		return nil, nil
	}
	s := newLoadedStore(t, gw, Options{})

	got, err := s.Update(context.Background(), "t1", domain.TicketPatch{
		ClientName:  strPtr("  Countess  "),
		Description: strPtr("\tpaper feed\n"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ClientName != "Countess" || got.Description != "paper feed" {
		t.Fatalf("expected trimmed fields, got %+v", got)
	}
	if sent.ClientName == nil || *sent.ClientName != "Countess" {
		t.Fatalf("expected trimmed patch sent to gateway, got %+v", sent)
	}

	if _, err := s.Update(context.Background(), "t1", domain.TicketPatch{ClientName: strPtr("   ")}); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Fatalf("expected blank name rejected, got %v", err)
	}
}
