package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"lottery_bot/internal/config"
	"lottery_bot/internal/model"
	"lottery_bot/internal/storage"
	"lottery_bot/internal/validator"
)

// --- mocks ---

type sentMsg struct {
	ChatID int64
	Text   string
	Markup any
}

type answered struct {
	ID    string
	Text  string
	Alert bool
}

type mockTG struct {
	mu      sync.Mutex
	sent    []sentMsg
	answers []answered
}

func (m *mockTG) Send(_ context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, Markup: msg.ReplyMarkup})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockTG) Answer(_ context.Context, id, text string, alert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, answered{ID: id, Text: text, Alert: alert})
	return nil
}

func (m *mockTG) Updates(int) tgbotapi.UpdatesChannel { return make(tgbotapi.UpdatesChannel) }
func (m *mockTG) StopUpdates()                        {}
func (m *mockTG) BotID() int64                        { return 42 }
func (m *mockTG) Username() string                    { return "lottery_bot" }

func (m *mockTG) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

func (m *mockTG) last() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

type mockEval struct {
	mu     sync.Mutex
	result validator.Result
	calls  []int64
}

func (m *mockEval) Evaluate(_ context.Context, userID int64, _ *model.Activity) (validator.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, userID)
	return m.result, nil
}

type mockSpeech struct{}

func (mockSpeech) Counts(_ context.Context, _ int64, _ *model.Activity, c model.Condition) ([]validator.ChatCount, int, error) {
	n, err := c.Threshold()
	return []validator.ChatCount{{ChatID: -1001, Count: 2}}, n, err
}

// --- helpers ---

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBot(t *testing.T) (*Bot, *mockTG, *mockEval, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tg := &mockTG{}
	eval := &mockEval{result: validator.Result{AllPassed: true}}
	cfg := &config.Config{AdminUsers: config.IDList{1}}
	b := New(tg, store, cfg, eval, mockSpeech{}, zerolog.Nop())
	return b, tg, eval, store
}

func seedActivity(t *testing.T, store *storage.SQLite, name string, status model.Status) *model.Activity {
	t.Helper()
	a := &model.Activity{
		OwnerID:   1,
		Name:      name,
		StartTime: base,
		EndTime:   base.Add(time.Hour),
		Scope:     "-1001",
		Status:    status,
		Prizes:    []model.PrizeTier{{Name: "Gold", Content: "100", Count: 1}},
		Conditions: []model.Condition{
			{Kind: model.ConditionJoinGroup, Target: "-1001", Link: "https://t.me/+g", ButtonName: "Join group"},
			{Kind: model.ConditionSpeechCount, Target: "-1001", Link: "3", ButtonName: "Chat"},
		},
	}
	if err := store.CreateActivity(context.Background(), a); err != nil {
		t.Fatalf("seed activity: %v", err)
	}
	return a
}

func privateCommand(userID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID, UserName: "alice", FirstName: "Alice"},
		Chat:     &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID, UserName: "alice", FirstName: "Alice"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID, Type: "private"}},
		Data:    data,
	}}
}

// --- tests ---

func TestStartRecordsFollowerAndListsActive(t *testing.T) {
	ctx := context.Background()
	b, tg, _, store := newTestBot(t)
	seedActivity(t, store, "Pending one", model.StatusPending)
	active := seedActivity(t, store, "Open one", model.StatusActive)

	b.handleUpdate(ctx, privateCommand(100, "/start"))

	ok, err := store.IsBotFollower(ctx, 42, 100)
	if err != nil || !ok {
		t.Fatalf("IsBotFollower() = %v, %v; want true", ok, err)
	}

	got := tg.last()
	kb, isKB := got.Markup.(tgbotapi.InlineKeyboardMarkup)
	if !isKB {
		t.Fatalf("expected inline keyboard, got %T", got.Markup)
	}
	var labels, data []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			labels = append(labels, btn.Text)
			data = append(data, *btn.CallbackData)
		}
	}
	if diff := cmp.Diff([]string{"Open one"}, labels); diff != "" {
		t.Errorf("button labels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{callbackData(actionJoin, active.ID)}, data); diff != "" {
		t.Errorf("button data mismatch (-want +got):\n%s", diff)
	}
}

func TestStartWithoutActivities(t *testing.T) {
	b, tg, _, _ := newTestBot(t)
	b.handleUpdate(context.Background(), privateCommand(100, "/start"))
	if got := tg.lastText(); got != "There are no open lotteries right now." {
		t.Errorf("reply = %q", got)
	}
}

func TestStartDeepLinkJoins(t *testing.T) {
	ctx := context.Background()
	b, _, eval, store := newTestBot(t)
	a := seedActivity(t, store, "Open", model.StatusActive)

	b.handleUpdate(ctx, privateCommand(100, "/start "+itoa(a.ID)))

	if _, err := store.GetParticipant(ctx, a.ID, 100); err != nil {
		t.Fatalf("participant not recorded: %v", err)
	}
	if diff := cmp.Diff([]int64{100}, eval.calls); diff != "" {
		t.Errorf("evaluate calls mismatch (-want +got):\n%s", diff)
	}
}

func TestJoinCallback(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		status      model.Status
		result      validator.Result
		wantJoined  bool
		wantText    string
		wantButtons []string
	}{
		{
			name:       "all passed",
			status:     model.StatusActive,
			result:     validator.Result{AllPassed: true},
			wantJoined: true,
			wantText:   "You are in the draw for \"Draw\". Good luck!",
		},
		{
			name:   "unmet conditions get buttons",
			status: model.StatusActive,
			result: validator.Result{Conditions: []validator.ConditionResult{
				{Condition: model.Condition{Kind: model.ConditionJoinGroup, Link: "https://t.me/+g", ButtonName: "Join group"}},
				{Condition: model.Condition{Kind: model.ConditionSpeechCount, Link: "3", ButtonName: "Chat"}},
			}},
			wantJoined:  true,
			wantText:    "You joined \"Draw\", but some conditions are not met yet:\n- Join group\n- Chat\n\nComplete them and tap Check again.",
			wantButtons: []string{"Join group", "Chat", "Check again"},
		},
		{
			name:     "closed activity",
			status:   model.StatusEnded,
			wantText: "\"Draw\" is not open for entries.",
		},
		{
			name:     "pending activity",
			status:   model.StatusPending,
			wantText: "\"Draw\" is not open for entries.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, tg, eval, store := newTestBot(t)
			eval.result = tt.result
			a := seedActivity(t, store, "Draw", tt.status)

			b.handleUpdate(ctx, callback(100, callbackData(actionJoin, a.ID)))

			_, err := store.GetParticipant(ctx, a.ID, 100)
			if joined := err == nil; joined != tt.wantJoined {
				t.Errorf("joined = %v, want %v (err %v)", joined, tt.wantJoined, err)
			}
			got := tg.last()
			if diff := cmp.Diff(tt.wantText, got.Text); diff != "" {
				t.Errorf("reply mismatch (-want +got):\n%s", diff)
			}
			var buttons []string
			if kb, ok := got.Markup.(tgbotapi.InlineKeyboardMarkup); ok {
				for _, row := range kb.InlineKeyboard {
					for _, btn := range row {
						buttons = append(buttons, btn.Text)
					}
				}
			}
			if diff := cmp.Diff(tt.wantButtons, buttons); diff != "" {
				t.Errorf("buttons mismatch (-want +got):\n%s", diff)
			}
			if len(tg.answers) != 1 {
				t.Errorf("callback answered %d times, want 1", len(tg.answers))
			}
		})
	}
}

func TestCheckCallbackRequiresParticipation(t *testing.T) {
	ctx := context.Background()
	b, tg, eval, store := newTestBot(t)
	a := seedActivity(t, store, "Draw", model.StatusActive)

	b.handleUpdate(ctx, callback(100, callbackData(actionCheck, a.ID)))
	if got := tg.lastText(); got != "You have not joined this lottery yet. Use /start to join." {
		t.Errorf("reply = %q", got)
	}
	if len(eval.calls) != 0 {
		t.Errorf("evaluated a non-participant")
	}

	u := model.ActivityUser{ActivityID: a.ID, UserID: 100}
	if err := store.AddParticipant(ctx, &u); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	b.handleUpdate(ctx, callback(100, callbackData(actionCheck, a.ID)))
	if diff := cmp.Diff([]int64{100}, eval.calls); diff != "" {
		t.Errorf("evaluate calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSpeechCallbackAlerts(t *testing.T) {
	b, tg, _, store := newTestBot(t)
	a := seedActivity(t, store, "Draw", model.StatusActive)

	b.handleUpdate(context.Background(), callback(100, callbackData(actionSpeech, a.ID)))

	want := []answered{{ID: "cb", Text: "Messages needed per chat: 3\n-1001: 2/3 missing", Alert: true}}
	if diff := cmp.Diff(want, tg.answers); diff != "" {
		t.Errorf("answers mismatch (-want +got):\n%s", diff)
	}
}

func TestMalformedCallbackIsAcknowledged(t *testing.T) {
	b, tg, _, _ := newTestBot(t)
	b.handleUpdate(context.Background(), callback(100, "join:abc"))
	if len(tg.answers) != 1 || len(tg.sent) != 0 {
		t.Errorf("answers = %d, sent = %d; want 1, 0", len(tg.answers), len(tg.sent))
	}
}

func TestGroupMessagesRecorded(t *testing.T) {
	ctx := context.Background()
	b, _, _, store := newTestBot(t)

	at := base.Add(10 * time.Minute)
	for _, text := range []string{"hello", "gm", "/start"} {
		upd := tgbotapi.Update{Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 100},
			Chat: &tgbotapi.Chat{ID: -1001, Type: "supergroup"},
			Date: int(at.Unix()),
			Text: text,
		}}
		if strings.HasPrefix(text, "/") {
			upd.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Length: len(text)}}
		}
		b.handleUpdate(ctx, upd)
	}

	n, err := store.CountUserMessages(ctx, 100, -1001, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("recorded %d messages, want 2", n)
	}
}

func TestAdminCommands(t *testing.T) {
	ctx := context.Background()
	b, tg, _, store := newTestBot(t)
	a := seedActivity(t, store, "Draw", model.StatusActive)
	ended := seedActivity(t, store, "Old", model.StatusEnded)

	b.handleUpdate(ctx, privateCommand(999, "/activities"))
	if got := tg.lastText(); got != "Access denied." {
		t.Errorf("non-admin reply = %q", got)
	}

	b.handleUpdate(ctx, privateCommand(1, "/activities"))
	if got := tg.lastText(); !strings.Contains(got, "#"+itoa(a.ID)+" Draw [active]") || strings.Contains(got, "Old") {
		t.Errorf("/activities reply = %q", got)
	}

	tests := []struct {
		args string
		want string
	}{
		{args: "", want: "Usage: /kill <id>"},
		{args: "999", want: "Lottery #999 not found."},
		{args: itoa(ended.ID), want: "Lottery #" + itoa(ended.ID) + " has already finished."},
		{args: itoa(a.ID), want: "Lottery #" + itoa(a.ID) + " cancelled."},
	}
	for _, tt := range tests {
		b.handleUpdate(ctx, privateCommand(1, strings.TrimSpace("/kill "+tt.args)))
		if got := tg.lastText(); got != tt.want {
			t.Errorf("/kill %s reply = %q, want %q", tt.args, got, tt.want)
		}
	}

	got, err := store.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusKilled {
		t.Errorf("status = %s, want killed", got.Status)
	}
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	b, tg, _, store := newTestBot(t)
	a := seedActivity(t, store, "Draw", model.StatusActive)

	if err := b.SendStart(ctx, a, -1001); err != nil {
		t.Fatalf("SendStart: %v", err)
	}
	start := tg.last()
	if start.ChatID != -1001 || !strings.Contains(start.Text, "1. Gold 100 x1") {
		t.Errorf("start message = %+v", start)
	}
	kb, ok := start.Markup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || *kb.InlineKeyboard[0][0].URL != "https://t.me/lottery_bot?start="+itoa(a.ID) {
		t.Errorf("start markup = %+v", start.Markup)
	}

	if err := b.SendEnd(ctx, a, -1002); err != nil {
		t.Fatalf("SendEnd: %v", err)
	}
	if diff := cmp.Diff("Draw has ended\n\nNo winners this time.", tg.lastText()); diff != "" {
		t.Errorf("end message without winners mismatch (-want +got):\n%s", diff)
	}

	prizes := []struct {
		user    model.ActivityUser
		content string
		level   int
	}{
		{user: model.ActivityUser{UserID: 11, UserName: "bob"}, content: "Silver 10", level: 2},
		{user: model.ActivityUser{UserID: 12}},
		{user: model.ActivityUser{UserID: 13, FullName: "Alice A"}, content: "Gold 100", level: 1},
	}
	for _, p := range prizes {
		u := p.user
		u.ActivityID = a.ID
		if err := store.AddParticipant(ctx, &u); err != nil {
			t.Fatalf("add participant: %v", err)
		}
		if p.level > 0 {
			if err := store.SetUserPrize(ctx, u.ID, p.content, p.level); err != nil {
				t.Fatalf("set prize: %v", err)
			}
		}
	}

	// Winners come from the store, not from the roster carried by the activity.
	a.Users = []model.ActivityUser{{UserName: "stale", Winner: true, WinningContent: "Nothing", PrizeLevel: 1}}
	if err := b.SendEnd(ctx, a, -1002); err != nil {
		t.Fatalf("SendEnd: %v", err)
	}
	want := "Draw has ended\n\nWinners:\nAlice A: Gold 100\n@bob: Silver 10"
	if diff := cmp.Diff(want, tg.lastText()); diff != "" {
		t.Errorf("end message mismatch (-want +got):\n%s", diff)
	}
}
