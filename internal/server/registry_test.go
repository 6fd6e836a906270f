package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test: Creating a group yields a one-player roster with the creator as host
// Why: The create/read-back round trip is the foundation of the protocol
func TestRegistry_CreateGroup(t *testing.T) {
	r := NewGroupRegistry()

	code, roster, departure, err := r.CreateGroup("session-a", "Amy")
	assert.NoError(t, err)
	assert.Nil(t, departure)
	assert.Len(t, code, 3)
	assert.Len(t, roster, 1)
	assert.Equal(t, "session-a", roster[0].ID)
	assert.Equal(t, "Amy", roster[0].Nickname)
	assert.Equal(t, 0, roster[0].Score)

	prof, err := r.GetProficiency(code)
	assert.NoError(t, err)
	assert.Equal(t, ProficiencyEasy, prof)
}

// Test: Codes of live groups are pairwise distinct
func TestRegistry_CreateGroupUniqueCodes(t *testing.T) {
	r := NewGroupRegistry()
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		code, _, _, err := r.CreateGroup(fmt.Sprintf("session-%d", i), "Player")
		assert.NoError(t, err)
		assert.False(t, seen[code], "code %s issued twice", code)
		seen[code] = true
	}

	assert.Equal(t, 50, r.GroupCount())
}

// Test: Creating beyond the 900-code space fails with a capacity error
func TestRegistry_CreateGroupCapacityExhausted(t *testing.T) {
	r := NewGroupRegistry()

	for i := 0; i < 900; i++ {
		_, _, _, err := r.CreateGroup(fmt.Sprintf("session-%d", i), "Player")
		assert.NoError(t, err)
	}

	_, _, _, err := r.CreateGroup("session-overflow", "Late")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CAPACITY_EXHAUSTED")
}

// Test: A capacity failure does not eject the sender from their group
// Why: A failed create must leave every roster untouched
func TestRegistry_CreateGroupCapacityKeepsMembership(t *testing.T) {
	r := NewGroupRegistry()

	firstCode, _, _, err := r.CreateGroup("session-0", "Player")
	assert.NoError(t, err)

	for i := 1; i < 900; i++ {
		_, _, _, err := r.CreateGroup(fmt.Sprintf("session-%d", i), "Player")
		assert.NoError(t, err)
	}

	_, _, _, err = r.CreateGroup("session-0", "Player")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CAPACITY_EXHAUSTED")

	// Still host of the original group
	roster, err := r.GetRoster(firstCode)
	assert.NoError(t, err)
	assert.Len(t, roster, 1)
	assert.True(t, r.IsHost(firstCode, "session-0"))
}

// Test: A successful create detaches the creator's stale membership
func TestRegistry_CreateGroupDetachesStaleMembership(t *testing.T) {
	r := NewGroupRegistry()

	oldCode, _, _, _ := r.CreateGroup("session-a", "Amy")
	_, _, _ = r.JoinGroup(oldCode, "session-b", "Bea")

	newCode, roster, departure, err := r.CreateGroup("session-b", "Bea")
	assert.NoError(t, err)
	assert.NotEqual(t, oldCode, newCode)
	assert.Len(t, roster, 1)

	// The old group shrank and heard about it
	assert.NotNil(t, departure)
	assert.Equal(t, oldCode, departure.Code)
	assert.Len(t, departure.Remaining, 1)
	assert.Equal(t, "session-a", departure.Remaining[0].ID)
}

// Test: Join appends in order; the new player is last and prior order holds
func TestRegistry_JoinGroupPreservesOrder(t *testing.T) {
	r := NewGroupRegistry()

	code, _, _, err := r.CreateGroup("session-a", "Amy")
	assert.NoError(t, err)

	roster, departure, err := r.JoinGroup(code, "session-b", "Bea")
	assert.NoError(t, err)
	assert.Nil(t, departure)
	assert.Len(t, roster, 2)

	roster, _, err = r.JoinGroup(code, "session-c", "Cal")
	assert.NoError(t, err)
	assert.Len(t, roster, 3)

	assert.Equal(t, "session-a", roster[0].ID)
	assert.Equal(t, "session-b", roster[1].ID)
	assert.Equal(t, "session-c", roster[2].ID)
	assert.Equal(t, 0, roster[2].Score)
}

func TestRegistry_JoinGroupNotFound(t *testing.T) {
	r := NewGroupRegistry()

	_, _, err := r.JoinGroup("999", "session-b", "Bea")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GROUP_NOT_FOUND")
}

// Test: A missed join changes no roster anywhere
// Why: The sender must keep their current membership when the target code
// is dead; only a successful join moves them
func TestRegistry_JoinGroupMissKeepsMembership(t *testing.T) {
	r := NewGroupRegistry()

	code, _, _, err := r.CreateGroup("session-a", "Amy")
	assert.NoError(t, err)

	deadCode := "100"
	if deadCode == code {
		deadCode = "101"
	}

	_, departure, err := r.JoinGroup(deadCode, "session-a", "Amy")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GROUP_NOT_FOUND")
	assert.Nil(t, departure)

	// Still sole member and host of the original group
	assert.Equal(t, 1, r.GroupCount())
	roster, err := r.GetRoster(code)
	assert.NoError(t, err)
	assert.Len(t, roster, 1)
	assert.True(t, r.IsHost(code, "session-a"))
}

// Test: A successful join moves the player out of their old group
func TestRegistry_JoinGroupDetachesStaleMembership(t *testing.T) {
	r := NewGroupRegistry()

	oldCode, _, _, _ := r.CreateGroup("session-a", "Amy")
	_, _, _ = r.JoinGroup(oldCode, "session-b", "Bea")

	newCode, _, _, _ := r.CreateGroup("session-c", "Cal")

	roster, departure, err := r.JoinGroup(newCode, "session-b", "Bea")
	assert.NoError(t, err)
	assert.Len(t, roster, 2)

	assert.NotNil(t, departure)
	assert.Equal(t, oldCode, departure.Code)
	assert.Len(t, departure.Remaining, 1)
	assert.Equal(t, "session-a", departure.Remaining[0].ID)

	// Sole-member old group dies with the move
	_, departure, err = r.JoinGroup(oldCode, "session-a", "Amy")
	assert.NoError(t, err)
	assert.NotNil(t, departure)
	assert.Empty(t, departure.Remaining)
	assert.Equal(t, 1, r.GroupCount())
}

// Test: Rejoining the group you are in is a no-op
func TestRegistry_JoinGroupAlreadyMember(t *testing.T) {
	r := NewGroupRegistry()

	code, _, _, _ := r.CreateGroup("session-a", "Amy")
	_, _, _ = r.JoinGroup(code, "session-b", "Bea")

	roster, departure, err := r.JoinGroup(code, "session-b", "Bea")
	assert.NoError(t, err)
	assert.Nil(t, departure)
	assert.Len(t, roster, 2)
	assert.Equal(t, "session-a", roster[0].ID)
	assert.Equal(t, "session-b", roster[1].ID)
}

// Test: SetProficiency on a dissolved group is a silent no-op
// Why: Late-arriving messages about dead groups must not fail the coordinator
func TestRegistry_SetProficiencyMissingGroupIsNoop(t *testing.T) {
	r := NewGroupRegistry()

	assert.NotPanics(t, func() {
		r.SetProficiency("999", ProficiencyHard)
	})
	assert.Equal(t, 0, r.GroupCount())
}

func TestRegistry_SetProficiency(t *testing.T) {
	r := NewGroupRegistry()

	code, _, _, _ := r.CreateGroup("session-a", "Amy")
	r.SetProficiency(code, ProficiencyMedium)

	prof, err := r.GetProficiency(code)
	assert.NoError(t, err)
	assert.Equal(t, ProficiencyMedium, prof)
}

// Test: Only the host (players[0]) can start; position is the sole authority
func TestRegistry_StartGameHostOnly(t *testing.T) {
	r := NewGroupRegistry()

	code, _, _, _ := r.CreateGroup("session-a", "Amy")
	_, _, err := r.JoinGroup(code, "session-b", "Bea")
	assert.NoError(t, err)

	// Non-host rejected
	_, err = r.StartGame(code, "session-b", ProficiencyMedium)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_HOST")

	// Roster untouched by the rejected start
	roster, err := r.GetRoster(code)
	assert.NoError(t, err)
	assert.Len(t, roster, 2)

	// Host allowed
	roster, err = r.StartGame(code, "session-a", ProficiencyMedium)
	assert.NoError(t, err)
	assert.Len(t, roster, 2)

	prof, _ := r.GetProficiency(code)
	assert.Equal(t, ProficiencyMedium, prof)
}

func TestRegistry_StartGameMissingGroup(t *testing.T) {
	r := NewGroupRegistry()

	_, err := r.StartGame("999", "session-a", ProficiencyEasy)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GROUP_NOT_FOUND")
}

// Test: Score updates locate the player by session id and overwrite as
// reported; other players' scores stay put
func TestRegistry_UpdateScore(t *testing.T) {
	r := NewGroupRegistry()

	code, _, _, _ := r.CreateGroup("session-a", "Amy")
	_, _, err := r.JoinGroup(code, "session-b", "Bea")
	assert.NoError(t, err)

	gotCode, roster, err := r.UpdateScore("session-b", 100)
	assert.NoError(t, err)
	assert.Equal(t, code, gotCode)
	assert.Equal(t, 0, roster[0].Score)
	assert.Equal(t, 100, roster[1].Score)

	// Overwrite, not accumulate
	_, roster, err = r.UpdateScore("session-b", 40)
	assert.NoError(t, err)
	assert.Equal(t, 40, roster[1].Score)
}

func TestRegistry_UpdateScoreNotMember(t *testing.T) {
	r := NewGroupRegistry()

	_, _, err := r.UpdateScore("session-nobody", 10)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_IN_GROUP")
}

// Test: Removing the host promotes the next player silently
// Why: Host authority is list position; there is no promote message
func TestRegistry_RemovePlayerPromotesHost(t *testing.T) {
	r := NewGroupRegistry()

	code, _, _, _ := r.CreateGroup("session-a", "Amy")
	_, _, _ = r.JoinGroup(code, "session-b", "Bea")
	_, _, _ = r.JoinGroup(code, "session-c", "Cal")

	gotCode, remaining, removed := r.RemovePlayer("session-a")
	assert.True(t, removed)
	assert.Equal(t, code, gotCode)
	assert.Len(t, remaining, 2)
	assert.Equal(t, "session-b", remaining[0].ID)

	assert.True(t, r.IsHost(code, "session-b"))
	assert.False(t, r.IsHost(code, "session-c"))

	// The promoted host can start
	_, err := r.StartGame(code, "session-b", ProficiencyHard)
	assert.NoError(t, err)
}

// Test: Removing a non-host keeps the host and the join order of the rest
func TestRegistry_RemoveMiddlePlayer(t *testing.T) {
	r := NewGroupRegistry()

	code, _, _, _ := r.CreateGroup("session-a", "Amy")
	_, _, _ = r.JoinGroup(code, "session-b", "Bea")
	_, _, _ = r.JoinGroup(code, "session-c", "Cal")

	_, remaining, removed := r.RemovePlayer("session-b")
	assert.True(t, removed)
	assert.Equal(t, "session-a", remaining[0].ID)
	assert.Equal(t, "session-c", remaining[1].ID)
	assert.True(t, r.IsHost(code, "session-a"))
}

// Test: Removing the last player deletes the group and frees the code
func TestRegistry_RemoveLastPlayerDeletesGroup(t *testing.T) {
	r := NewGroupRegistry()

	code, _, _, _ := r.CreateGroup("session-a", "Amy")

	_, remaining, removed := r.RemovePlayer("session-a")
	assert.True(t, removed)
	assert.Empty(t, remaining)
	assert.Equal(t, 0, r.GroupCount())

	// Joining the dead code fails
	_, _, err := r.JoinGroup(code, "session-b", "Bea")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GROUP_NOT_FOUND")
}

func TestRegistry_RemovePlayerNotMember(t *testing.T) {
	r := NewGroupRegistry()

	_, _, removed := r.RemovePlayer("session-nobody")
	assert.False(t, removed)
}

func TestRegistry_IsHostMissingGroup(t *testing.T) {
	r := NewGroupRegistry()

	assert.False(t, r.IsHost("999", "session-a"))
}

// Test: Rosters returned to callers are copies
// Why: Broadcast payloads must not alias registry-owned memory
func TestRegistry_RosterIsACopy(t *testing.T) {
	r := NewGroupRegistry()

	code, roster, _, _ := r.CreateGroup("session-a", "Amy")
	roster[0].Score = 9000

	fresh, err := r.GetRoster(code)
	assert.NoError(t, err)
	assert.Equal(t, 0, fresh[0].Score)
}

// Test: Concurrent mutation through the registry stays consistent
// Why: Each websocket runs its own goroutine; the registry lock is the
// serialization point
func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewGroupRegistry()

	code, _, _, err := r.CreateGroup("session-host", "Host")
	assert.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", n)
			if _, _, err := r.JoinGroup(code, id, fmt.Sprintf("P%d", n)); err != nil {
				return
			}
			_, _, _ = r.UpdateScore(id, n*10)
		}(i)
	}
	wg.Wait()

	roster, err := r.GetRoster(code)
	assert.NoError(t, err)
	assert.Len(t, roster, 21)
	assert.Equal(t, "session-host", roster[0].ID)
}

func TestValidProficiency(t *testing.T) {
	assert.True(t, ValidProficiency(ProficiencyEasy))
	assert.True(t, ValidProficiency(ProficiencyMedium))
	assert.True(t, ValidProficiency(ProficiencyHard))
	assert.False(t, ValidProficiency("expert"))
	assert.False(t, ValidProficiency(""))
}
