package server

import (
	"errors"
	"sync"
	"time"
)

// GroupRegistry owns every Group and Player record. All mutations go through
// its methods under the write lock; nothing else may touch a player list.
// That keeps the "host = index 0" invariant enforceable in one place.
type GroupRegistry struct {
	groups map[string]*Group
	mu     sync.RWMutex
}

// Group is one code-addressed session of players on the same content.
// Players is join-ordered; index 0 is the host. Host status is always
// recomputed from position, never cached, so promotion on disconnect is
// automatic.
type Group struct {
	Code        string
	Players     []Player
	Proficiency Proficiency
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Player is a participant's identity within a group. ID references the
// owning transport session; the registry does not own connections.
type Player struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

type Proficiency string

const (
	ProficiencyEasy   Proficiency = "easy"
	ProficiencyMedium Proficiency = "medium"
	ProficiencyHard   Proficiency = "hard"
)

func ValidProficiency(p Proficiency) bool {
	switch p {
	case ProficiencyEasy, ProficiencyMedium, ProficiencyHard:
		return true
	}
	return false
}

// Departure records a membership the registry released as a side effect of
// a create or join: the group the session left and the surviving roster
// (empty when the group was deleted with it). Callers broadcast Remaining
// to the old group.
type Departure struct {
	Code      string
	Remaining []Player
}

func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{
		groups: make(map[string]*Group),
	}
}

// CreateGroup generates a unique code and creates a group with this player
// as sole member and host, default proficiency. Fails only when the entire
// code space is exhausted. Any membership the session already holds is
// detached in the same critical section, but only after code generation
// succeeds: a capacity failure leaves every roster untouched.
func (r *GroupRegistry) CreateGroup(sessionID, nickname string) (string, []Player, *Departure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := GenerateGroupCode(r.liveCodes())
	if err != nil {
		return "", nil, nil, err
	}

	departure := r.detachLocked(sessionID)

	now := time.Now()
	group := &Group{
		Code: code,
		Players: []Player{
			{ID: sessionID, Nickname: nickname, Score: 0},
		},
		Proficiency: ProficiencyEasy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.groups[code] = group

	return code, group.roster(), departure, nil
}

// JoinGroup appends the player to the group's list (they become non-host)
// and returns the updated roster. A stale membership is detached in the
// same critical section, but only once the target group is known to exist:
// a miss changes no roster anywhere. Joining a group the session is already
// in returns the current roster unchanged.
func (r *GroupRegistry) JoinGroup(code, sessionID, nickname string) ([]Player, *Departure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, exists := r.groups[code]
	if !exists {
		return nil, nil, errors.New("GROUP_NOT_FOUND: Group not found")
	}

	for _, p := range group.Players {
		if p.ID == sessionID {
			return group.roster(), nil, nil
		}
	}

	departure := r.detachLocked(sessionID)

	group.Players = append(group.Players, Player{
		ID:       sessionID,
		Nickname: nickname,
		Score:    0,
	})
	group.UpdatedAt = time.Now()

	return group.roster(), departure, nil
}

// SetProficiency is a no-op when the group does not exist: a late message
// about an already-dissolved group must not fail the coordinator.
func (r *GroupRegistry) SetProficiency(code string, proficiency Proficiency) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, exists := r.groups[code]
	if !exists {
		return
	}

	group.Proficiency = proficiency
	group.UpdatedAt = time.Now()
}

// StartGame confirms the group exists and the sender is its host, stores the
// chosen proficiency, and returns the roster for the game-started broadcast.
func (r *GroupRegistry) StartGame(code, sessionID string, proficiency Proficiency) ([]Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, exists := r.groups[code]
	if !exists {
		return nil, errors.New("GROUP_NOT_FOUND: Group not found")
	}

	if len(group.Players) == 0 || group.Players[0].ID != sessionID {
		return nil, errors.New("NOT_HOST: Only the host can start the game")
	}

	group.Proficiency = proficiency
	group.UpdatedAt = time.Now()

	return group.roster(), nil
}

// UpdateScore locates the player by session id within their group and
// overwrites the score as reported. Scores are client-reported and trusted;
// the server never recomputes or validates them.
func (r *GroupRegistry) UpdateScore(sessionID string, score int) (string, []Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, idx := r.findPlayer(sessionID)
	if group == nil {
		return "", nil, errors.New("NOT_IN_GROUP: Session is not a member of any group")
	}

	group.Players[idx].Score = score
	group.UpdatedAt = time.Now()

	return group.Code, group.roster(), nil
}

// RemovePlayer removes the session's player from its group, deleting the
// group entirely when it becomes empty (which frees the code for reuse).
// Returns the surviving roster for broadcast; removed is false when the
// session was not a member of any group.
func (r *GroupRegistry) RemovePlayer(sessionID string) (code string, remaining []Player, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	departure := r.detachLocked(sessionID)
	if departure == nil {
		return "", nil, false
	}

	return departure.Code, departure.Remaining, true
}

// GetRoster returns the current roster, or an error when the group is gone.
func (r *GroupRegistry) GetRoster(code string) ([]Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group, exists := r.groups[code]
	if !exists {
		return nil, errors.New("GROUP_NOT_FOUND: Group not found")
	}

	return group.roster(), nil
}

// GetProficiency returns the group's selected proficiency.
func (r *GroupRegistry) GetProficiency(code string) (Proficiency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group, exists := r.groups[code]
	if !exists {
		return "", errors.New("GROUP_NOT_FOUND: Group not found")
	}

	return group.Proficiency, nil
}

// IsHost reports whether the session currently occupies index 0 of the
// group. Recomputed from list position on every call.
func (r *GroupRegistry) IsHost(code, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group, exists := r.groups[code]
	if !exists {
		return false
	}

	return len(group.Players) > 0 && group.Players[0].ID == sessionID
}

// GroupCount returns the number of live groups.
func (r *GroupRegistry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.groups)
}

// detachLocked removes the session's player from whichever group holds it,
// deleting the group when it becomes empty. Returns nil when the session
// was not a member of any group. Caller must hold the write lock.
func (r *GroupRegistry) detachLocked(sessionID string) *Departure {
	group, idx := r.findPlayer(sessionID)
	if group == nil {
		return nil
	}

	group.Players = append(group.Players[:idx], group.Players[idx+1:]...)
	group.UpdatedAt = time.Now()

	if len(group.Players) == 0 {
		delete(r.groups, group.Code)
		return &Departure{Code: group.Code}
	}

	return &Departure{Code: group.Code, Remaining: group.roster()}
}

// findPlayer locates the (at most one) group containing the session.
// Caller must hold the lock.
func (r *GroupRegistry) findPlayer(sessionID string) (*Group, int) {
	for _, group := range r.groups {
		for i, p := range group.Players {
			if p.ID == sessionID {
				return group, i
			}
		}
	}
	return nil, -1
}

// liveCodes builds the in-use code set for generation. Caller must hold the
// lock. Codes of deleted groups are absent, so they can be reissued.
func (r *GroupRegistry) liveCodes() map[string]bool {
	used := make(map[string]bool, len(r.groups))
	for code := range r.groups {
		used[code] = true
	}
	return used
}

// roster copies the player list so callers can broadcast it without holding
// the registry lock or aliasing registry-owned memory.
func (g *Group) roster() []Player {
	players := make([]Player, len(g.Players))
	copy(players, g.Players)
	return players
}
