package session

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveProfileMerges(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewStore(clock)

	_, ok := store.Profile("user-1")
	assert.False(t, ok)

	store.SaveProfile("user-1", Profile{Name: "Bat", Email: "bat@example.mn", Phone: "88112233"})
	clock.Advance(time.Minute)
	saved := store.SaveProfile("user-1", Profile{Email: "bold@example.mn"})

	assert.Equal(t, "Bat", saved.Name)
	assert.Equal(t, "bold@example.mn", saved.Email)
	assert.Equal(t, "88112233", saved.Phone)
	assert.Equal(t, clock.Now(), saved.UpdatedAt)

	got, ok := store.Profile("user-1")
	require.True(t, ok)
	assert.Equal(t, saved, got)
}

func TestStore_FlagsExpire(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewStore(clock)

	store.SetFlag("guest-1", FlagResetPhone, "88112233", 0)
	store.SetFlag("guest-1", FlagResetToken, "tok", 10*time.Minute)

	v, ok := store.Flag("guest-1", FlagResetToken)
	require.True(t, ok)
	assert.Equal(t, "tok", v)

	clock.Advance(10 * time.Minute)
	_, ok = store.Flag("guest-1", FlagResetToken)
	assert.False(t, ok)

	v, ok = store.Flag("guest-1", FlagResetPhone)
	require.True(t, ok)
	assert.Equal(t, "88112233", v)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 0, store.Sweep())
}

func TestStore_ClearFlag(t *testing.T) {
	store := NewStore(clockwork.NewFakeClock())

	store.SetFlag("user-1", FlagResetPhone, "88112233", 0)
	store.ClearFlag("user-1", FlagResetPhone)
	store.ClearFlag("user-2", FlagResetPhone)

	_, ok := store.Flag("user-1", FlagResetPhone)
	assert.False(t, ok)
}
