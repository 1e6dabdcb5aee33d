package session

import (
	"encoding/json"
	"fmt"
	"time"
)

type Flow string

const (
	FlowCreateGroup Flow = "create_group"
	FlowJoinGroup   Flow = "join_group"
	FlowLeaveGroup  Flow = "leave_group"
	FlowSetName     Flow = "set_name"
	FlowSendGift    Flow = "send_gift"
	FlowCloseGroup  Flow = "close_group"
	FlowDeleteGroup Flow = "delete_group"
)

// State is one step of one flow. Each step is its own type and carries only
// the data collected before it, so a state can never hold fields of another
// flow.
type State interface {
	Flow() Flow
	Step() string
}

// Candidate is one entry of a numbered selection list. The list is a snapshot
// taken when the prompt was shown.
type Candidate struct {
	GroupID uint   `json:"group_id"`
	Label   string `json:"label"`
}

type CreateName struct{}

type CreateDescription struct {
	Name string `json:"name"`
}

type CreateGiftViaBot struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateDrawDate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	GiftViaBot  bool   `json:"gift_via_bot"`
}

type CreateDistributionDate struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	GiftViaBot  bool      `json:"gift_via_bot"`
	DrawDate    time.Time `json:"draw_date"`
}

type CreateCloseDate struct {
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	GiftViaBot       bool      `json:"gift_via_bot"`
	DrawDate         time.Time `json:"draw_date"`
	DistributionDate time.Time `json:"distribution_date"`
}

type JoinCode struct{}

type LeaveSelect struct {
	Candidates []Candidate `json:"candidates"`
}

type NameSelect struct {
	Candidates []Candidate `json:"candidates"`
}

type NameInput struct {
	GroupID   uint   `json:"group_id"`
	GroupName string `json:"group_name"`
}

type GiftSelect struct {
	Candidates []Candidate `json:"candidates"`
}

type GiftPayload struct {
	GroupID   uint   `json:"group_id"`
	GroupName string `json:"group_name"`
}

type CloseMessage struct {
	GroupID   uint   `json:"group_id"`
	GroupName string `json:"group_name"`
}

type DeleteSelect struct {
	Candidates []Candidate `json:"candidates"`
}

func (CreateName) Flow() Flow             { return FlowCreateGroup }
func (CreateDescription) Flow() Flow      { return FlowCreateGroup }
func (CreateGiftViaBot) Flow() Flow       { return FlowCreateGroup }
func (CreateDrawDate) Flow() Flow         { return FlowCreateGroup }
func (CreateDistributionDate) Flow() Flow { return FlowCreateGroup }
func (CreateCloseDate) Flow() Flow        { return FlowCreateGroup }
func (JoinCode) Flow() Flow               { return FlowJoinGroup }
func (LeaveSelect) Flow() Flow            { return FlowLeaveGroup }
func (NameSelect) Flow() Flow             { return FlowSetName }
func (NameInput) Flow() Flow              { return FlowSetName }
func (GiftSelect) Flow() Flow             { return FlowSendGift }
func (GiftPayload) Flow() Flow            { return FlowSendGift }
func (CloseMessage) Flow() Flow           { return FlowCloseGroup }
func (DeleteSelect) Flow() Flow           { return FlowDeleteGroup }

func (CreateName) Step() string             { return "name" }
func (CreateDescription) Step() string      { return "description" }
func (CreateGiftViaBot) Step() string       { return "gift_via_bot" }
func (CreateDrawDate) Step() string         { return "draw_date" }
func (CreateDistributionDate) Step() string { return "distribution_date" }
func (CreateCloseDate) Step() string        { return "close_date" }
func (JoinCode) Step() string               { return "code" }
func (LeaveSelect) Step() string            { return "select" }
func (NameSelect) Step() string             { return "select" }
func (NameInput) Step() string              { return "name" }
func (GiftSelect) Step() string             { return "select" }
func (GiftPayload) Step() string            { return "payload" }
func (CloseMessage) Step() string           { return "message" }
func (DeleteSelect) Step() string           { return "select" }

// Kind identifies the concrete type of a state in its encoded form.
func Kind(st State) string {
	return string(st.Flow()) + "/" + st.Step()
}

type decoder func(data []byte) (State, error)

var registry = map[string]decoder{}

func register[T State]() {
	var zero T
	registry[Kind(zero)] = func(data []byte) (State, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func init() {
	register[CreateName]()
	register[CreateDescription]()
	register[CreateGiftViaBot]()
	register[CreateDrawDate]()
	register[CreateDistributionDate]()
	register[CreateCloseDate]()
	register[JoinCode]()
	register[LeaveSelect]()
	register[NameSelect]()
	register[NameInput]()
	register[GiftSelect]()
	register[GiftPayload]()
	register[CloseMessage]()
	register[DeleteSelect]()
}

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes a state together with its kind.
func Encode(st State) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}
	return json.Marshal(envelope{Kind: Kind(st), Data: data})
}

// Decode is the inverse of Encode.
func Decode(b []byte) (State, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("failed to decode session envelope: %w", err)
	}
	dec, ok := registry[env.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown session state %q", env.Kind)
	}
	st, err := dec(env.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session state %q: %w", env.Kind, err)
	}
	return st, nil
}
