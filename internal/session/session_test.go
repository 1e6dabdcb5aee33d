package session

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/SecretSanta/config"
	"github.com/Gopher0727/SecretSanta/internal/draw"
	"github.com/Gopher0727/SecretSanta/internal/models"
	"github.com/Gopher0727/SecretSanta/internal/notify"
	"github.com/Gopher0727/SecretSanta/internal/services"
	"github.com/Gopher0727/SecretSanta/internal/storage"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

func TestCodec(t *testing.T) {
	states := []State{
		CreateName{},
		CreateDescription{Name: "Winter"},
		CreateGiftViaBot{Name: "Winter", Description: "20 EUR"},
		CreateDrawDate{Name: "Winter", GiftViaBot: true},
		CreateDistributionDate{Name: "Winter", DrawDate: time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC)},
		CreateCloseDate{
			Name:             "Winter",
			DrawDate:         time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC),
			DistributionDate: time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC),
		},
		JoinCode{},
		LeaveSelect{Candidates: []Candidate{{GroupID: 1, Label: "A"}, {GroupID: 2, Label: "B"}}},
		NameSelect{Candidates: []Candidate{{GroupID: 3, Label: "C"}}},
		NameInput{GroupID: 3, GroupName: "C"},
		GiftSelect{Candidates: []Candidate{{GroupID: 4, Label: "D"}}},
		GiftPayload{GroupID: 4, GroupName: "D"},
		CloseMessage{GroupID: 5, GroupName: "E"},
		DeleteSelect{Candidates: []Candidate{{GroupID: 6, Label: "F"}}},
	}
	require.Len(t, registry, len(states), "every state type must be registered")

	for _, st := range states {
		t.Run(Kind(st), func(t *testing.T) {
			b, err := Encode(st)
			require.NoError(t, err)
			got, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, reflect.TypeOf(st), reflect.TypeOf(got))
			assert.Equal(t, st, got)
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		_, err := Decode([]byte(`{"kind":"nope/step","data":{}}`))
		assert.Error(t, err)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := Decode([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	st, err := s.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, s.Put(ctx, "42", JoinCode{}))
	require.NoError(t, s.Put(ctx, "43", JoinCode{}))

	now = now.Add(59 * time.Second)
	st, err = s.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, JoinCode{}, st)

	now = now.Add(time.Second)
	st, err = s.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, st, "expired at exactly the TTL")
	assert.Equal(t, 1, s.Purge())

	require.NoError(t, s.Put(ctx, "44", JoinCode{}))
	require.NoError(t, s.Delete(ctx, "44"))
	st, err = s.Get(ctx, "44")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, time.Minute)

	st, err := s.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, st)

	want := NameInput{GroupID: 7, GroupName: "Winter (ABCD2345)"}
	require.NoError(t, s.Put(ctx, "42", want))
	assert.True(t, mr.Exists("santa:session:42"))

	st, err = s.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, want, st)

	t.Run("expires", func(t *testing.T) {
		mr.FastForward(61 * time.Second)
		st, err := s.Get(ctx, "42")
		require.NoError(t, err)
		assert.Nil(t, st)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "43", JoinCode{}))
		require.NoError(t, s.Delete(ctx, "43"))
		assert.False(t, mr.Exists("santa:session:43"))
	})

	t.Run("corrupt payload", func(t *testing.T) {
		require.NoError(t, mr.Set("santa:session:44", "{"))
		_, err := s.Get(ctx, "44")
		assert.Error(t, err)
	})

	t.Run("redis down", func(t *testing.T) {
		mr.Close()
		_, err := s.Get(ctx, "42")
		assert.Error(t, err)
	})
}

type fixture struct {
	store  *MemoryStore
	groups *services.GroupService
	gifts  *services.GiftService
	ids    *services.IdentityService
	m      *Manager
}

func newFixture(t *testing.T) *fixture {
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
	stores := services.NewStores(db)
	sink := notify.NotifierFunc(func(context.Context, notify.Message) error { return nil })
	b := notify.NewBroadcaster(sink, notify.Options{Timeout: time.Second}, log)

	f := &fixture{
		store:  NewMemoryStore(time.Hour),
		groups: services.NewGroupService(stores, draw.NewRandomEngine(), b, log),
		gifts:  services.NewGiftService(stores, log),
		ids:    services.NewIdentityService(stores.Users, log),
	}
	f.m = NewManager(f.store, f.groups, f.gifts, log)
	return f
}

func (f *fixture) user(t *testing.T, ext, name string) *models.User {
	t.Helper()
	u, err := f.ids.Upsert(context.Background(), services.Profile{ExternalID: ext, FirstName: name})
	require.NoError(t, err)
	return u
}

// say sends text and requires the user to be inside a flow.
func (f *fixture) say(t *testing.T, u *models.User, text string) []string {
	t.Helper()
	handled, replies := f.m.Handle(context.Background(), u, Input{Text: text})
	require.True(t, handled, "no active flow for %q", text)
	return replies
}

func (f *fixture) state(t *testing.T, u *models.User) State {
	t.Helper()
	st, err := f.store.Get(context.Background(), u.ExternalID)
	require.NoError(t, err)
	return st
}

func (f *fixture) group(t *testing.T, owner *models.User, name string, viaBot bool) *models.Group {
	t.Helper()
	d := time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC)
	dd := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	g, err := f.groups.CreateGroup(context.Background(), owner.ID, &services.CreateGroupRequest{
		Name: name, GiftViaBot: viaBot, DrawDate: &d, DistributionDate: &dd,
	})
	require.NoError(t, err)
	return g
}

func joined(replies []string) string {
	return strings.Join(replies, "\n")
}

func TestManager_CreateGroupFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "1", "Olga")

	replies := f.m.StartCreateGroup(ctx, owner)
	assert.Contains(t, joined(replies), "name of the new group")
	assert.Equal(t, CreateName{}, f.state(t, owner))

	replies = f.say(t, owner, "   ")
	assert.Contains(t, replies[0], "cannot be empty")
	assert.Equal(t, CreateName{}, f.state(t, owner), "validation keeps the step")

	f.say(t, owner, "Winter24")
	f.say(t, owner, "skip")
	assert.Equal(t, CreateGiftViaBot{Name: "Winter24"}, f.state(t, owner))

	replies = f.say(t, owner, "maybe")
	assert.Contains(t, replies[0], "yes or no")
	f.say(t, owner, "Да")

	replies = f.say(t, owner, "2024-12-10")
	assert.Contains(t, replies[0], "DD.MM.YYYY")
	f.say(t, owner, "10.12.2024")

	replies = f.say(t, owner, "01.12.2024")
	assert.Contains(t, replies[0], "after the draw date")
	f.say(t, owner, "25.12.2024")

	replies = f.say(t, owner, "24.12.2024")
	assert.Contains(t, replies[0], "after the distribution date")

	replies = f.say(t, owner, "пропустить")
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0], "Group 'Winter24' has been created")
	assert.Contains(t, replies[0], "Close date: 26.12.2024")
	code, ok := services.ParseInviteCode(replies[1])
	require.True(t, ok)
	assert.Nil(t, f.state(t, owner), "flow ends after creation")

	g, err := f.groups.OwnedGroup(ctx, owner.ID, models.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, code, g.Code)
	assert.True(t, g.GiftViaBot)
	assert.Equal(t, "", g.Description)

	t.Run("second open group is refused", func(t *testing.T) {
		replies := f.m.StartCreateGroup(ctx, owner)
		assert.Contains(t, joined(replies), "already own a group")
		assert.Nil(t, f.state(t, owner))
	})
}

func TestManager_CancelInEveryState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "1", "Olga")

	states := []State{
		CreateName{},
		CreateDescription{Name: "x"},
		CreateGiftViaBot{Name: "x"},
		CreateDrawDate{Name: "x"},
		CreateDistributionDate{Name: "x"},
		CreateCloseDate{Name: "x"},
		JoinCode{},
		LeaveSelect{Candidates: []Candidate{{GroupID: 1, Label: "a"}}},
		NameSelect{Candidates: []Candidate{{GroupID: 1, Label: "a"}}},
		NameInput{GroupID: 1},
		GiftSelect{Candidates: []Candidate{{GroupID: 1, Label: "a"}}},
		GiftPayload{GroupID: 1},
		CloseMessage{GroupID: 1},
		DeleteSelect{Candidates: []Candidate{{GroupID: 1, Label: "a"}}},
	}
	words := []string{"/cancel", "cancel", "Отмена", " CANCEL "}
	for i, st := range states {
		word := words[i%len(words)]
		t.Run(Kind(st)+" "+word, func(t *testing.T) {
			require.NoError(t, f.store.Put(ctx, u.ExternalID, st))
			assert.Equal(t, []string{cancelledText}, f.say(t, u, word))
			assert.Nil(t, f.state(t, u))
		})
	}

	t.Run("nothing to cancel", func(t *testing.T) {
		assert.Equal(t, []string{nothingToCancel}, f.m.Cancel(ctx, u))
	})
}

func TestManager_NoActiveFlow(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "1", "Olga")
	handled, replies := f.m.Handle(context.Background(), u, Input{Text: "hello"})
	assert.False(t, handled)
	assert.Empty(t, replies)
}

func TestManager_ExpiredFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "1", "Olga")
	now := time.Now()
	f.store.now = func() time.Time { return now }

	f.m.StartJoinGroup(ctx, u)
	now = now.Add(2 * time.Hour)

	handled, _ := f.m.Handle(ctx, u, Input{Text: "ABCD2345"})
	assert.False(t, handled)
}

func TestManager_JoinFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "1", "Olga")
	guest := f.user(t, "2", "Pavel")
	g := f.group(t, owner, "Winter24", false)

	t.Run("unknown code ends the flow", func(t *testing.T) {
		f.m.StartJoinGroup(ctx, guest)
		replies := f.say(t, guest, "ZZZZZZZZ")
		assert.Equal(t, []string{"group not found"}, replies)
		assert.Nil(t, f.state(t, guest))
	})

	t.Run("forwarded invite", func(t *testing.T) {
		f.m.StartJoinGroup(ctx, guest)
		replies := f.say(t, guest, services.NewInvite(g).Render())
		require.Len(t, replies, 1)
		assert.Contains(t, replies[0], "You joined group 'Winter24' as Pavel")
		assert.Nil(t, f.state(t, guest))
	})

	t.Run("already a member", func(t *testing.T) {
		f.m.StartJoinGroup(ctx, guest)
		replies := f.say(t, guest, strings.ToLower(g.Code))
		assert.Contains(t, replies[0], "already a participant")
	})
}

func TestManager_LeaveFlowSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "1", "Olga")
	b := f.user(t, "2", "Boris")
	guest := f.user(t, "3", "Pavel")
	ga := f.group(t, a, "Alpha", false)
	gb := f.group(t, b, "Beta", false)
	for _, g := range []*models.Group{ga, gb} {
		_, err := f.groups.JoinGroup(ctx, guest.ID, g.Code)
		require.NoError(t, err)
	}

	replies := f.m.StartLeaveGroup(ctx, guest)
	assert.Contains(t, replies[0], "1. Alpha ("+ga.Code+")")
	assert.Contains(t, replies[0], "2. Beta ("+gb.Code+")")

	for _, bad := range []string{"0", "3", "abc", "-1", ""} {
		replies := f.say(t, guest, bad)
		assert.Equal(t, "send a number from 1 to 2", replies[0], "input %q", bad)
		assert.IsType(t, LeaveSelect{}, f.state(t, guest))
	}

	replies = f.say(t, guest, "2")
	assert.Equal(t, []string{"You have left group 'Beta'."}, replies)
	assert.Nil(t, f.state(t, guest))

	t.Run("single candidate leaves at once", func(t *testing.T) {
		replies := f.m.StartLeaveGroup(ctx, guest)
		assert.Equal(t, []string{"You have left group 'Alpha'."}, replies)
	})

	t.Run("no candidates", func(t *testing.T) {
		assert.Equal(t, []string{noLeaveCandidates}, f.m.StartLeaveGroup(ctx, guest))
	})
}

func TestManager_SetNameFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "1", "Olga")
	f.group(t, owner, "Winter24", false)

	replies := f.m.StartSetName(ctx, owner)
	assert.Contains(t, joined(replies), "Enter your name for group Winter24")
	assert.IsType(t, NameInput{}, f.state(t, owner), "one candidate skips the selection")

	replies = f.say(t, owner, strings.Repeat("x", models.MaxParticipantNameLen+1))
	assert.Contains(t, replies[0], "too long")

	replies = f.say(t, owner, "  Mrs Claus ")
	assert.Equal(t, []string{"Your name in group 'Winter24' is now 'Mrs Claus'."}, replies)
}

func TestManager_GiftAndCloseFlows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "1", "Olga")
	guest := f.user(t, "2", "Pavel")
	g := f.group(t, owner, "Winter24", true)
	_, err := f.groups.JoinGroup(ctx, guest.ID, g.Code)
	require.NoError(t, err)

	assert.Equal(t, []string{noGiftCandidates}, f.m.StartSendGift(ctx, guest))

	_, err = f.groups.Draw(ctx, owner.ID, g.ID)
	require.NoError(t, err)

	f.m.StartSendGift(ctx, guest)
	require.IsType(t, GiftPayload{}, f.state(t, guest))

	handled, replies := f.m.Handle(ctx, guest, Input{MediaRef: "photo-1", Caption: "a scarf"})
	require.True(t, handled)
	assert.Contains(t, replies[0], "Your gift for group 'Winter24' is saved")

	p, err := f.groups.Participants.Get(ctx, g.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, "a scarf", p.GiftText)
	assert.Equal(t, "photo-1", p.GiftMediaRef)

	replies = f.m.StartCloseGroup(ctx, owner)
	assert.Contains(t, joined(replies), "farewell message")
	replies = f.say(t, owner, "skip")
	assert.Equal(t, []string{"Group 'Winter24' is closed. Farewell message delivered 2 of 2."}, replies)

	t.Run("delete all closed groups", func(t *testing.T) {
		replies := f.m.StartDeleteGroup(ctx, guest)
		assert.Contains(t, joined(replies), "Send 'all'")
		assert.Equal(t, []string{"Deleted 1 of 1 closed groups."}, f.say(t, guest, "ВСЕ"))

		replies = f.m.StartDeleteGroup(ctx, owner)
		assert.Contains(t, joined(replies), "1. Winter24 ("+g.Code+"), owner")
		assert.Equal(t, []string{"Group 'Winter24' has been deleted."}, f.say(t, owner, "1"))
		assert.Equal(t, []string{noDeleteCandidates}, f.m.StartDeleteGroup(ctx, owner))
	})
}

func TestManager_NewFlowOverwritesStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "1", "Olga")

	f.m.StartCreateGroup(ctx, u)
	f.say(t, u, "Winter24")
	f.m.StartJoinGroup(ctx, u)
	assert.Equal(t, JoinCode{}, f.state(t, u))
}

func TestManager_MediaInTextSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "1", "Olga")
	guest := f.user(t, "2", "Pavel")
	g := f.group(t, owner, "Winter24", false)
	_, err := f.groups.JoinGroup(ctx, guest.ID, g.Code)
	require.NoError(t, err)

	t.Run("farewell step keeps the group open", func(t *testing.T) {
		f.m.StartCloseGroup(ctx, owner)
		before := f.state(t, owner)
		require.IsType(t, CloseMessage{}, before)

		handled, replies := f.m.Handle(ctx, owner, Input{MediaRef: "photo-1"})
		require.True(t, handled)
		require.Len(t, replies, 2)
		assert.Equal(t, textOnlyText, replies[0])
		assert.Equal(t, prompt(before), replies[1])
		assert.Equal(t, before, f.state(t, owner))

		reloaded, err := f.groups.Groups.GetByID(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, reloaded.Status)

		f.m.Cancel(ctx, owner)
	})

	t.Run("description step stays put", func(t *testing.T) {
		other := f.user(t, "3", "Ivan")
		f.m.StartCreateGroup(ctx, other)
		f.say(t, other, "Spring25")

		handled, replies := f.m.Handle(ctx, other, Input{MediaRef: "photo-2", Caption: "look"})
		require.True(t, handled)
		assert.Equal(t, textOnlyText, replies[0])
		assert.Equal(t, CreateDescription{Name: "Spring25"}, f.state(t, other))
	})
}
