package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/SecretSanta/config"
	"github.com/Gopher0727/SecretSanta/internal/draw"
	"github.com/Gopher0727/SecretSanta/internal/notify"
	"github.com/Gopher0727/SecretSanta/internal/services"
	"github.com/Gopher0727/SecretSanta/internal/session"
	"github.com/Gopher0727/SecretSanta/internal/storage"
	"github.com/Gopher0727/SecretSanta/internal/utils"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (o *outbox) Notify(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) kind(userID string, kind notify.Kind) []notify.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []notify.Message
	for _, m := range o.msgs {
		if m.UserID == userID && m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func newRouter(t *testing.T) (*Router, *outbox) {
	t.Helper()
	db, err := storage.InitDatabase(&config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "santa.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	log := logger.NewNop()
	box := &outbox{}
	stores := services.NewStores(db)
	groups := services.NewGroupService(stores,
		draw.NewRandomEngine(),
		notify.NewBroadcaster(box, notify.Options{Timeout: time.Second}, log),
		log)
	gifts := services.NewGiftService(stores, log)

	pool := utils.NewKeyedPool(4, 8, log)
	pool.Start()
	t.Cleanup(pool.Stop)

	sessions := session.NewManager(session.NewMemoryStore(time.Hour), groups, gifts, log)
	return NewRouter(services.NewIdentityService(stores.Users, log), groups, sessions, pool, log), box
}

func send(t *testing.T, r *Router, ev Event) []string {
	t.Helper()
	msgs, err := r.Handle(context.Background(), ev)
	require.NoError(t, err)
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		assert.Equal(t, ev.UserID, m.UserID)
		texts[i] = m.Text
	}
	return texts
}

func cmd(user, name string, args ...string) Event {
	return Event{Type: EventCommand, UserID: user, FirstName: "User " + user, Command: name, Args: args}
}

func text(user, body string) Event {
	return Event{Type: EventText, UserID: user, FirstName: "User " + user, Text: body}
}

func TestEvent_Normalize(t *testing.T) {
	ev := Event{Type: EventCommand, UserID: " 42 ", Command: "/Draw@santa_bot"}
	require.NoError(t, ev.Normalize())
	assert.Equal(t, "draw", ev.Command)
	assert.Equal(t, "42", ev.UserID)

	bad := map[string]Event{
		"no user":       {Type: EventText, Text: "hi"},
		"unknown type":  {Type: "sticker", UserID: "1"},
		"media w/o ref": {Type: EventMedia, UserID: "1"},
		"empty command": {Type: EventCommand, UserID: "1", Command: "/"},
	}
	for name, ev := range bad {
		t.Run(name, func(t *testing.T) {
			err := ev.Normalize()
			assert.True(t, errors.Is(err, services.ErrValidation), "got %v", err)
		})
	}
}

func TestRouter_Scenario(t *testing.T) {
	r, box := newRouter(t)

	replies := send(t, r, cmd("1", "start"))
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0], "Hi, User 1!")
	assert.Contains(t, replies[1], "/create_group")

	send(t, r, cmd("1", "/create_group"))
	for _, answer := range []string{"Winter24", "up to 20 EUR", "no", "10.12.2024", "25.12.2024"} {
		send(t, r, text("1", answer))
	}
	replies = send(t, r, text("1", "skip"))
	require.Len(t, replies, 2)
	invite := replies[1]
	code, ok := services.ParseInviteCode(invite)
	require.True(t, ok)

	// A forwarded invite joins without any command.
	replies = send(t, r, text("2", "Look at this:\n"+invite))
	assert.Equal(t, []string{"You joined group 'Winter24' as User 2.\nUse /set_name to change your name before the draw."}, replies)
	replies = send(t, r, cmd("3", "join_group", strings.ToLower(code)))
	assert.Contains(t, replies[0], "You joined group 'Winter24'")

	replies = send(t, r, cmd("2", "draw"))
	assert.Equal(t, []string{"you do not own a group in a suitable status"}, replies)

	replies = send(t, r, cmd("1", "draw"))
	assert.Equal(t, []string{"The draw in group 'Winter24' is done: 3 participants, assignments delivered 3 of 3."}, replies)
	for _, u := range []string{"1", "2", "3"} {
		msgs := box.kind(u, notify.KindAssignment)
		require.Len(t, msgs, 1, "user %s", u)
		assert.Contains(t, msgs[0].Text, "You are giving a gift to:")
	}

	replies = send(t, r, cmd("1", "draw"))
	assert.Equal(t, []string{services.ErrInvalidState.Error()}, replies)

	replies = send(t, r, cmd("2", "my_groups"))
	assert.Contains(t, replies[0], "Groups you joined:\n- Winter24 ("+code+"): drawn, your name is User 2, you give a gift to User ")

	replies = send(t, r, cmd("1", "close_group", "Thanks", "all!"))
	assert.Equal(t, []string{"Group 'Winter24' is closed. Farewell message delivered 3 of 3."}, replies)
	closing := box.kind("2", notify.KindClosing)
	require.Len(t, closing, 1)
	assert.Contains(t, closing[0].Text, "Thanks all!")

	replies = send(t, r, cmd("4", "join_group", code))
	assert.Contains(t, replies[0], "no longer accepting participants")
}

func TestRouter_GiftsThroughTheBot(t *testing.T) {
	r, box := newRouter(t)

	send(t, r, cmd("1", "create_group"))
	for _, answer := range []string{"Gifts", "-", "yes", "10.12.2024", "25.12.2024", "-"} {
		send(t, r, text("1", answer))
	}
	send(t, r, cmd("2", "join_group", inviteCode(t, r, "1")))
	send(t, r, cmd("1", "draw"))

	replies := send(t, r, cmd("2", "send_gift"))
	assert.Contains(t, replies[0], "Send the gift for group Gifts")
	replies = send(t, r, Event{Type: EventMedia, UserID: "2", MediaRef: "photo-7", Caption: "socks"})
	assert.Contains(t, replies[0], "Your gift for group 'Gifts' is saved")

	replies = send(t, r, cmd("1", "distribute_gifts"))
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0], "Gifts in group 'Gifts' have been distributed, delivered 2 of 2."), replies[0])
	// The close date lies in the past, so the group closes right away.
	assert.Contains(t, replies[0], "now closed")

	gifts := box.kind("1", notify.KindGift)
	require.Len(t, gifts, 1)
	assert.Equal(t, "photo-7", gifts[0].MediaRef)
	assert.Contains(t, gifts[0].Text, "socks")

	msgs, err := r.Handle(context.Background(), cmd("1", "view_gifts"))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.KindGift, msgs[0].Kind)
	assert.Equal(t, "photo-7", msgs[0].MediaRef)

	replies = send(t, r, cmd("2", "view_gifts"))
	assert.Contains(t, replies[0], "agreed place")
}

func inviteCode(t *testing.T, r *Router, user string) string {
	t.Helper()
	msgs, err := r.Handle(context.Background(), cmd(user, "invite"))
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	assert.Equal(t, notify.KindInvite, msgs[0].Kind)
	code, ok := services.ParseInviteCode(msgs[0].Text)
	require.True(t, ok)
	return code
}

func TestRouter_Fallbacks(t *testing.T) {
	r, _ := newRouter(t)

	replies := send(t, r, cmd("1", "teleport"))
	assert.Equal(t, "Unknown command /teleport.", replies[0])

	replies = send(t, r, text("1", "hello there"))
	assert.Equal(t, []string{notUnderstoodText}, replies)

	replies = send(t, r, text("1", "отмена"))
	assert.Equal(t, []string{"There is nothing to cancel."}, replies)

	replies = send(t, r, cmd("1", "my_groups"))
	assert.Equal(t, []string{"You have no groups yet. Use /create_group or /join_group."}, replies)

	replies = send(t, r, cmd("1", "invite"))
	assert.Contains(t, replies[0], "no groups that are open for joining")

	replies = send(t, r, cmd("1", "help"))
	assert.Contains(t, replies[0], "How Secret Santa works")

	msgs, err := r.Handle(context.Background(), Event{Type: EventUserSeen, UserID: "1"})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = r.Handle(context.Background(), Event{Type: EventText})
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestRouter_FailedCommandEndsFlow(t *testing.T) {
	r, _ := newRouter(t)

	send(t, r, cmd("1", "create_group"))
	send(t, r, text("1", "Winter24"))

	replies := send(t, r, cmd("1", "draw"))
	assert.Equal(t, []string{"you do not own a group in a suitable status"}, replies)

	// The description prompt is gone; the text is no longer an answer.
	replies = send(t, r, text("1", "up to 20 EUR"))
	assert.Equal(t, []string{notUnderstoodText}, replies)
	replies = send(t, r, text("1", "отмена"))
	assert.Equal(t, []string{"There is nothing to cancel."}, replies)
}

func TestRouter_ParallelUsers(t *testing.T) {
	r, _ := newRouter(t)

	send(t, r, cmd("1", "create_group"))
	for _, answer := range []string{"Party", "-", "no", "10.12.2024", "25.12.2024", "-"} {
		send(t, r, text("1", answer))
	}
	code := inviteCode(t, r, "1")

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := string(rune('a' + i))
			msgs, err := r.Handle(context.Background(), cmd(user, "join_group", code))
			assert.NoError(t, err)
			if assert.Len(t, msgs, 1) {
				assert.Contains(t, msgs[0].Text, "You joined group 'Party'")
			}
		}()
	}
	wg.Wait()

	replies := send(t, r, cmd("1", "my_groups"))
	assert.Contains(t, replies[0], "11 participants")
}
