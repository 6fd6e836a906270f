package server

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorMessage struct {
	Message string `json:"message"`
}

// ============================================================================
// CONNECTED (connected, sent once on accept)
// ============================================================================
type ConnectedNotification struct {
	ID string `json:"id"`
}

// ============================================================================
// CREATE GROUP (createGroup)
// ============================================================================
type CreateGroupRequest struct {
	Nickname string `json:"nickname"`
}

type GroupCreatedResponse struct {
	GroupCode string   `json:"groupCode"`
	Players   []Player `json:"players"`
}

// ============================================================================
// JOIN GROUP (joinGroup)
// ============================================================================
type JoinGroupRequest struct {
	Nickname  string `json:"nickname"`
	GroupCode string `json:"groupCode"`
}

type JoinSuccessResponse struct {
	GroupCode string `json:"groupCode"`
}

// joinError carries a bare string reason, not a struct. updatePlayers carries
// a bare []Player roster. Both go through ServerMessage.Payload directly.

// ============================================================================
// SET PROFICIENCY (setProficiency, host only)
// ============================================================================
type SetProficiencyRequest struct {
	GroupCode   string      `json:"groupCode"`
	Proficiency Proficiency `json:"proficiency"`
}

// ============================================================================
// START GAME (startGameRequest, host only)
// ============================================================================
type StartGameRequest struct {
	GroupCode   string      `json:"groupCode"`
	Proficiency Proficiency `json:"proficiency"`
}

type GameStartedNotification struct {
	Proficiency Proficiency `json:"proficiency"`
}

// ============================================================================
// UPDATE SCORE (updateScore)
// ============================================================================
// The client sends its whole player object plus the group code. The server
// identifies the sender by transport session, not by the claimed ID.
type UpdateScoreRequest struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Score     int    `json:"score"`
	GroupCode string `json:"groupCode"`
}
