package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	all := []Status{StatusActive, StatusDrawn, StatusDistribution, StatusClosed}
	allowed := map[Status][]Status{
		StatusActive:       {StatusDrawn, StatusClosed},
		StatusDrawn:        {StatusDistribution, StatusClosed},
		StatusDistribution: {StatusClosed},
		StatusClosed:       nil,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, contains(allowed[from], to), from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.False(t, Status("archived").Valid())
	assert.False(t, StatusClosed.IsOpen())
	assert.True(t, StatusDrawn.IsOpen())
}

func contains(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestGroup_BeforeSave(t *testing.T) {
	t.Run("defaults close date to the day after distribution", func(t *testing.T) {
		dist := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
		g := &Group{DistributionDate: &dist}
		require.NoError(t, g.BeforeSave(nil))

		require.NotNil(t, g.CloseDate)
		assert.Equal(t, time.Date(2024, 12, 26, 0, 0, 0, 0, time.UTC), *g.CloseDate)
		assert.Equal(t, StatusActive, g.Status)
	})

	t.Run("keeps an explicit close date", func(t *testing.T) {
		dist := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
		closeAt := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
		g := &Group{DistributionDate: &dist, CloseDate: &closeAt}
		require.NoError(t, g.BeforeSave(nil))
		assert.Equal(t, closeAt, *g.CloseDate)
	})

	t.Run("leaves close date unset without distribution date", func(t *testing.T) {
		g := &Group{}
		require.NoError(t, g.BeforeSave(nil))
		assert.Nil(t, g.CloseDate)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		g := &Group{Status: "archived"}
		assert.Error(t, g.BeforeSave(nil))
	})

	t.Run("closed flag follows status", func(t *testing.T) {
		g := &Group{Status: StatusDistribution}
		assert.False(t, g.IsClosed())
		g.Status = StatusClosed
		assert.True(t, g.IsClosed())
	})
}

func TestUser_DefaultDisplayName(t *testing.T) {
	assert.Equal(t, "Ann", (&User{ExternalID: "1", FirstName: "Ann", Username: "ann"}).DefaultDisplayName())
	assert.Equal(t, "ann", (&User{ExternalID: "1", Username: "ann"}).DefaultDisplayName())
	assert.Equal(t, "Participant 1", (&User{ExternalID: "1"}).DefaultDisplayName())
}

func TestDraw_BeforeCreate(t *testing.T) {
	assert.ErrorIs(t, (&Draw{GiverID: 3, ReceiverID: 3}).BeforeCreate(nil), ErrSelfAssignment)
	assert.NoError(t, (&Draw{GiverID: 3, ReceiverID: 4}).BeforeCreate(nil))
}

func TestParticipant_HasGift(t *testing.T) {
	assert.False(t, (&Participant{GiftText: "socks"}).HasGift())
	assert.True(t, (&Participant{GiftText: "socks", GiftFinalized: true}).HasGift())
	assert.True(t, (&Participant{GiftMediaRef: "file-1", GiftFinalized: true}).HasGift())
}
