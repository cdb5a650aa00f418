package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vyktorion/pwa-sub000/internal/chat"
	"github.com/vyktorion/pwa-sub000/internal/storage/memory"
)

type recordedNotification struct {
	conversationID string
	senderID       string
	senderName     string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []recordedNotification
	err   error
}

func (f *fakeNotifier) NotifyNewMessage(ctx context.Context, conv *chat.Conversation, msg *chat.Message, senderName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedNotification{
		conversationID: conv.ID,
		senderID:       msg.SenderID,
		senderName:     senderName,
	})
	return f.err
}

func newTestService() (*chat.Service, *fakeNotifier) {
	conversations := memory.NewConversationRepository()
	messages := memory.NewMessageRepository()
	notifier := &fakeNotifier{}
	svc := &chat.Service{
		Conversations: conversations,
		Messages:      messages,
		Subscriptions: memory.NewSubscriptionRepository(),
		Accountant: &chat.Accountant{
			Conversations: conversations,
			Messages:      messages,
		},
		Notifier: notifier,
	}
	return svc, notifier
}

func TestFirstContactScenario(t *testing.T) {
	svc, notifier := newTestService()
	ctx := context.Background()

	conv, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "Cozy flat", "flat.jpg")
	if err != nil {
		t.Fatalf("CreateOrGetConversation: %v", err)
	}
	if len(conv.Participants) != 2 || !conv.HasParticipant("user-a") || !conv.HasParticipant("user-b") {
		t.Fatalf("unexpected participants: %v", conv.Participants)
	}

	msg, err := svc.SendMessage(ctx, chat.SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "user-a",
		SenderName:     "Alice",
		Content:        "Hello",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Read {
		t.Fatalf("new message must start unread")
	}

	summaries, err := svc.ListConversations(ctx, "user-b")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(summaries))
	}
	got := summaries[0]
	if got.LastMessage == nil || got.LastMessage.Content != "Hello" {
		t.Fatalf("last message not denormalized: %+v", got.LastMessage)
	}
	if got.MessageCount != 1 || got.UnreadCount != 1 {
		t.Fatalf("expected messageCount=1 unreadCount=1, got %d/%d", got.MessageCount, got.UnreadCount)
	}

	if err := svc.MarkConversationRead(ctx, conv.ID, "user-b"); err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	count, err := svc.GetUnreadCount(ctx, "user-b")
	if err != nil {
		t.Fatalf("GetUnreadCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected unread 0 after mark read, got %d", count)
	}
	// second call is a true no-op
	if err := svc.MarkConversationRead(ctx, conv.ID, "user-b"); err != nil {
		t.Fatalf("second MarkConversationRead: %v", err)
	}

	if len(notifier.calls) != 1 {
		t.Fatalf("expected 1 push hand-off, got %d", len(notifier.calls))
	}
	if notifier.calls[0].senderName != "Alice" || notifier.calls[0].conversationID != conv.ID {
		t.Fatalf("unexpected hand-off: %+v", notifier.calls[0])
	}
}

func TestCreateOrGetConversation_NeverDuplicates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "", "")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	// reversed participant order must resolve to the same record
	second, err := svc.CreateOrGetConversation(ctx, "user-b", "user-a", "prop-1", "", "")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one conversation, got %s and %s", first.ID, second.ID)
	}
	// a different property is a different thread
	other, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-2", "", "")
	if err != nil {
		t.Fatalf("other property create: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("distinct properties must not share a conversation")
	}
}

func TestCreateOrGetConversation_ConcurrentCallersGetSameID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	const callers = 16
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "", "")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()
	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got %s, caller 0 got %s", i, ids[i], ids[0])
		}
	}
}

func TestCreateOrGetConversation_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name          string
		a, b, propID  string
	}{
		{"missing user", "", "user-b", "prop-1"},
		{"missing property", "user-a", "user-b", ""},
		{"self conversation", "user-a", "user-a", "prop-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateOrGetConversation(ctx, tc.a, tc.b, tc.propID, "", ""); !errors.Is(err, chat.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSendMessage_Errors(t *testing.T) {
	svc, notifier := newTestService()
	ctx := context.Background()

	conv, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.SendMessage(ctx, chat.SendMessageInput{ConversationID: conv.ID, SenderID: "user-a", Content: "   "}); !errors.Is(err, chat.ErrValidation) {
		t.Fatalf("empty content: expected ErrValidation, got %v", err)
	}
	if _, err := svc.SendMessage(ctx, chat.SendMessageInput{ConversationID: "nope", SenderID: "user-a", Content: "hi"}); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("missing conversation: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.SendMessage(ctx, chat.SendMessageInput{ConversationID: conv.ID, SenderID: "intruder", Content: "hi"}); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("non-participant: expected ErrForbidden, got %v", err)
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("failed sends must not hand off pushes")
	}
}

func TestSendMessage_NotifierFailureDoesNotFailSend(t *testing.T) {
	svc, notifier := newTestService()
	notifier.err = errors.New("queue down")
	ctx := context.Background()

	conv, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SendMessage(ctx, chat.SendMessageInput{ConversationID: conv.ID, SenderID: "user-a", Content: "hi"}); err != nil {
		t.Fatalf("send must succeed despite notifier failure: %v", err)
	}
}

func TestListMessages_PaginationSweep(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	conv, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	const total = 120
	for i := 0; i < total; i++ {
		if _, err := svc.SendMessage(ctx, chat.SendMessageInput{
			ConversationID: conv.ID,
			SenderID:       "user-a",
			Content:        fmt.Sprintf("msg-%03d", i),
		}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	page1, err := svc.ListMessages(ctx, conv.ID, "user-b", 50, "")
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1.Messages) != 50 || !page1.HasMore || page1.NextCursor == "" {
		t.Fatalf("page 1: got %d messages, hasMore=%v", len(page1.Messages), page1.HasMore)
	}
	page2, err := svc.ListMessages(ctx, conv.ID, "user-b", 50, page1.NextCursor)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2.Messages) != 50 || !page2.HasMore {
		t.Fatalf("page 2: got %d messages, hasMore=%v", len(page2.Messages), page2.HasMore)
	}
	page3, err := svc.ListMessages(ctx, conv.ID, "user-b", 50, page2.NextCursor)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3.Messages) != 20 || page3.HasMore {
		t.Fatalf("page 3: got %d messages, hasMore=%v", len(page3.Messages), page3.HasMore)
	}

	assertFullSweep(t, total, page1.Messages, page2.Messages, page3.Messages)
}

func TestListMessages_StableUnderConcurrentAppends(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	conv, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	const initial = 25
	for i := 0; i < initial; i++ {
		mustSend(t, svc, conv.ID, fmt.Sprintf("old-%02d", i))
	}

	page1, err := svc.ListMessages(ctx, conv.ID, "user-b", 10, "")
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}

	// newer messages land between page fetches
	for i := 0; i < 10; i++ {
		mustSend(t, svc, conv.ID, fmt.Sprintf("new-%02d", i))
	}

	seen := map[string]bool{}
	for _, m := range page1.Messages {
		seen[m.Content] = true
	}
	cursor := page1.NextCursor
	for cursor != "" {
		page, err := svc.ListMessages(ctx, conv.ID, "user-b", 10, cursor)
		if err != nil {
			t.Fatalf("page via cursor %s: %v", cursor, err)
		}
		for _, m := range page.Messages {
			if seen[m.Content] {
				t.Fatalf("duplicate message %q across pages", m.Content)
			}
			if strings.HasPrefix(m.Content, "new-") {
				t.Fatalf("older pages must not contain newer message %q", m.Content)
			}
			seen[m.Content] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	for i := 0; i < initial; i++ {
		if !seen[fmt.Sprintf("old-%02d", i)] {
			t.Fatalf("message old-%02d omitted from sweep", i)
		}
	}
}

func TestListMessages_LimitValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	conv, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, limit := range []int{0, -1, 101} {
		if _, err := svc.ListMessages(ctx, conv.ID, "user-a", limit, ""); !errors.Is(err, chat.ErrValidation) {
			t.Fatalf("limit %d: expected ErrValidation, got %v", limit, err)
		}
	}
	if _, err := svc.ListMessages(ctx, conv.ID, "stranger", 10, ""); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("non-participant list: expected ErrForbidden, got %v", err)
	}
}

func TestMarkRead_OnlyOtherPartysMessages(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	conv, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mustSend(t, svc, conv.ID, "from a 1")
	mustSend(t, svc, conv.ID, "from a 2")
	if _, err := svc.SendMessage(ctx, chat.SendMessageInput{ConversationID: conv.ID, SenderID: "user-b", Content: "from b"}); err != nil {
		t.Fatalf("send from b: %v", err)
	}

	// reading as the sender must not touch their own unread state for the peer
	if err := svc.MarkConversationRead(ctx, conv.ID, "user-a"); err != nil {
		t.Fatalf("mark read as a: %v", err)
	}
	countB, err := svc.GetUnreadCount(ctx, "user-b")
	if err != nil {
		t.Fatalf("unread b: %v", err)
	}
	if countB != 2 {
		t.Fatalf("user-b should still have 2 unread, got %d", countB)
	}
	countA, err := svc.GetUnreadCount(ctx, "user-a")
	if err != nil {
		t.Fatalf("unread a: %v", err)
	}
	if countA != 0 {
		t.Fatalf("user-a should have 0 unread after reading, got %d", countA)
	}
}

func TestUnreadCount_RespectsRetentionWindow(t *testing.T) {
	conversations := memory.NewConversationRepository()
	messages := memory.NewMessageRepository()
	svc := &chat.Service{
		Conversations: conversations,
		Messages:      messages,
		Subscriptions: memory.NewSubscriptionRepository(),
		Accountant: &chat.Accountant{
			Conversations: conversations,
			Messages:      messages,
			Window:        24 * time.Hour,
			// pretend two days passed since the messages were appended
			Now: func() time.Time { return time.Now().Add(48 * time.Hour) },
		},
	}
	ctx := context.Background()
	conv, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mustSend(t, svc, conv.ID, "hello")

	count, err := svc.GetUnreadCount(ctx, "user-b")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if count != 0 {
		t.Fatalf("messages outside the retention window must not count, got %d", count)
	}
}

func TestDeleteMessage(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	conv, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	msg, err := svc.SendMessage(ctx, chat.SendMessageInput{ConversationID: conv.ID, SenderID: "user-a", Content: "oops"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := svc.DeleteMessage(ctx, msg.ID, "user-b"); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("non-sender delete: expected ErrForbidden, got %v", err)
	}
	deleted, err := svc.DeleteMessage(ctx, msg.ID, "user-a")
	if err != nil || !deleted {
		t.Fatalf("sender delete: deleted=%v err=%v", deleted, err)
	}
	if _, err := svc.DeleteMessage(ctx, msg.ID, "user-a"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("repeat delete: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteConversation_Cascades(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	conv, err := svc.CreateOrGetConversation(ctx, "user-a", "user-b", "prop-1", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mustSend(t, svc, conv.ID, "one")
	mustSend(t, svc, conv.ID, "two")

	if _, err := svc.DeleteConversation(ctx, conv.ID, "stranger"); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("stranger delete: expected ErrForbidden, got %v", err)
	}
	deleted, err := svc.DeleteConversation(ctx, conv.ID, "user-b")
	if err != nil || !deleted {
		t.Fatalf("participant delete: deleted=%v err=%v", deleted, err)
	}
	// cascade removed the messages with the conversation
	count, err := svc.Messages.CountForConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 messages after cascade, got %d", count)
	}
	// deleting a conversation that is already gone reports false, not an error
	deleted, err = svc.DeleteConversation(ctx, conv.ID, "user-b")
	if err != nil || deleted {
		t.Fatalf("repeat delete: deleted=%v err=%v", deleted, err)
	}
}

func TestUpdateLastMessage_MissingConversationIsNoOp(t *testing.T) {
	conversations := memory.NewConversationRepository()
	msg := &chat.Message{ID: "m1", ConversationID: "gone", SenderID: "user-a", Content: "x", CreatedAt: time.Now()}
	if err := conversations.UpdateLastMessage(context.Background(), "gone", msg); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
}

func mustSend(t *testing.T, svc *chat.Service, conversationID, content string) {
	t.Helper()
	if _, err := svc.SendMessage(context.Background(), chat.SendMessageInput{
		ConversationID: conversationID,
		SenderID:       "user-a",
		Content:        content,
	}); err != nil {
		t.Fatalf("send %q: %v", content, err)
	}
}

func assertFullSweep(t *testing.T, total int, pages ...[]chat.Message) {
	t.Helper()
	seen := make(map[string]bool, total)
	var previous *chat.Message
	// pages come newest-window first; each page is internally ascending
	for i := len(pages) - 1; i >= 0; i-- {
		for _, m := range pages[i] {
			if seen[m.ID] {
				t.Fatalf("duplicate message %s", m.ID)
			}
			seen[m.ID] = true
			if previous != nil && m.CreatedAt.Before(previous.CreatedAt) {
				t.Fatalf("messages out of order: %s before %s", m.Content, previous.Content)
			}
			copied := m
			previous = &copied
		}
	}
	if len(seen) != total {
		t.Fatalf("sweep returned %d of %d messages", len(seen), total)
	}
}
