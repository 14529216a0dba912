package game

import "encoding/json"

// Envelope WS envelope: {"type":"...","payload":{...}}
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// incoming message types
const (
	MsgAuth           = "auth"
	MsgSubmitGuess    = "submit_guess"
	MsgTyping         = "typing"
	MsgSkipTurn       = "skip_turn"
	MsgForfeit        = "forfeit"
	MsgRematchRequest = "rematch_request"
	MsgRematchCancel  = "rematch_cancel"
	MsgLeave          = "leave"
	MsgUpdateRatings  = "update_ratings"
)

// outgoing message types
const (
	MsgState  = "state"
	MsgResult = "result"
	MsgError  = "error"
)

type AuthPayload struct {
	Token string `json:"token"`
}

type GuessPayload struct {
	Guess string `json:"guess"`
}

type ResultPayload struct {
	Op      string        `json:"op"`
	Result  *Result       `json:"result,omitempty"`
	Ratings *RatingResult `json:"ratings,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateMatchRequest struct {
	Player1ID       string `json:"player1Id"`
	Player2ID       string `json:"player2Id"`
	Difficulty      string `json:"difficulty"`
	FixedDifficulty bool   `json:"fixedDifficulty"`
}

type CreateMatchResponse struct {
	MatchID string `json:"matchId"`
}

type OperationResponse struct {
	Result Result    `json:"result"`
	Match  MatchView `json:"match"`
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
