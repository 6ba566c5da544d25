package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxrelay/pkg/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "robot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterDevice_UniqueIDsAndLastSeen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seen := make(map[int64]bool)
	for i := 0; i < 5; i++ {
		before := time.Now().UTC().Add(-time.Millisecond)
		d, err := s.RegisterDevice(ctx, "Kitchen Pi", protocol.StatusOnline, "")
		after := time.Now().UTC().Add(time.Millisecond)
		require.NoError(t, err)

		assert.False(t, seen[d.ID], "id %d reused", d.ID)
		seen[d.ID] = true
		assert.False(t, d.LastSeen.Before(before))
		assert.False(t, d.LastSeen.After(after))
	}

	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 5)
}

func TestRegisterDevice_Defaults(t *testing.T) {
	s := openTestStore(t)

	d, err := s.RegisterDevice(context.Background(), "Kitchen Pi", "", "")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOnline, d.Status)
	assert.Equal(t, protocol.DefaultDeviceType, d.DeviceType)

	d, err = s.RegisterDevice(context.Background(), "Desk", protocol.StatusOffline, "windows")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOffline, d.Status)
	assert.Equal(t, "windows", d.DeviceType)
}

func TestRegisterDevice_Invalid(t *testing.T) {
	s := openTestStore(t)

	_, err := s.RegisterDevice(context.Background(), "  ", "", "")
	assert.ErrorIs(t, err, ErrInvalidDevice)

	_, err = s.RegisterDevice(context.Background(), "Kitchen Pi", "sleeping", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateDeviceStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d, err := s.RegisterDevice(ctx, "Kitchen Pi", protocol.StatusOnline, "")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	updated, err := s.UpdateDeviceStatus(ctx, d.ID, protocol.StatusOffline)
	require.NoError(t, err)
	assert.Equal(t, d.ID, updated.ID)
	assert.Equal(t, protocol.StatusOffline, updated.Status)
	assert.True(t, updated.LastSeen.After(d.LastSeen))

	got, err := s.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestUpdateDeviceStatus_NotFoundLeavesStateAlone(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d, err := s.RegisterDevice(ctx, "Kitchen Pi", protocol.StatusOnline, "")
	require.NoError(t, err)

	_, err = s.UpdateDeviceStatus(ctx, 999, protocol.StatusOffline)
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, d, devices[0])
}

func TestUpdateDeviceStatus_UnknownIDBeatsBadStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d, err := s.RegisterDevice(ctx, "Kitchen Pi", protocol.StatusOnline, "")
	require.NoError(t, err)

	_, err = s.UpdateDeviceStatus(ctx, 999, "busy")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = s.UpdateDeviceStatus(ctx, d.ID, "busy")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	got, err := s.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestGetDevice_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetDevice(context.Background(), 42)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestAppendConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d, err := s.RegisterDevice(ctx, "Kitchen Pi", "", "")
	require.NoError(t, err)

	first, err := s.AppendConversation(ctx, d.ID, "hello", "hi there")
	require.NoError(t, err)
	second, err := s.AppendConversation(ctx, d.ID, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	list, err := s.ListConversations(ctx, d.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, "hello", list[1].UserInput)
	assert.Equal(t, "hi there", list[1].AIResponse)
}

func TestAppendConversation_UnknownDeviceCommitsNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.AppendConversation(ctx, 999, "hello", "hi")
	require.Error(t, err)

	_, err = s.AppendConversation(ctx, 0, "hello", "hi")
	assert.ErrorIs(t, err, ErrInvalidTurn)

	n, err := s.CountConversations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListConversations_FilterAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.RegisterDevice(ctx, "a", "", "")
	require.NoError(t, err)
	b, err := s.RegisterDevice(ctx, "b", "", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.AppendConversation(ctx, a.ID, "q", "r")
		require.NoError(t, err)
	}
	_, err = s.AppendConversation(ctx, b.ID, "q", "r")
	require.NoError(t, err)

	all, err := s.ListConversations(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	onlyB, err := s.ListConversations(ctx, b.ID, 10)
	require.NoError(t, err)
	require.Len(t, onlyB, 1)
	assert.Equal(t, b.ID, onlyB[0].DeviceID)

	limited, err := s.ListConversations(ctx, a.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
