package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/Gopher0727/SecretSanta/internal/models"
	"github.com/Gopher0727/SecretSanta/internal/utils"
)

// InviteMarker prefixes the join code in an invite. Clients that receive a
// forwarded invite look for it to join automatically.
const InviteMarker = "SANTA_INVITE:"

type Invite struct {
	Name             string     `json:"name"`
	Code             string     `json:"code"`
	Description      string     `json:"description"`
	DrawDate         *time.Time `json:"draw_date,omitempty"`
	DistributionDate *time.Time `json:"distribution_date,omitempty"`
}

func NewInvite(g *models.Group) Invite {
	return Invite{
		Name:             g.Name,
		Code:             g.Code,
		Description:      g.Description,
		DrawDate:         g.DrawDate,
		DistributionDate: g.DistributionDate,
	}
}

// Render is the text meant to be forwarded verbatim. The marker line is last.
func (i Invite) Render() string {
	var b strings.Builder
	b.WriteString("You are invited to a Secret Santa group!\n\n")
	fmt.Fprintf(&b, "Group: %s\n", i.Name)
	fmt.Fprintf(&b, "Code: %s\n\n", i.Code)
	if i.Description != "" {
		fmt.Fprintf(&b, "Gift description:\n%s\n\n", i.Description)
	}
	fmt.Fprintf(&b, "Draw date: %s\n", utils.FormatDate(i.DrawDate, "not set"))
	fmt.Fprintf(&b, "Distribution date: %s\n\n", utils.FormatDate(i.DistributionDate, "not set"))
	b.WriteString("Forward this message to the bot to join the group automatically.\n\n")
	b.WriteString(InviteMarker + i.Code)
	return b.String()
}

// ParseInviteCode extracts the code following the marker, up to the end of
// that line. ok is false when there is no marker or no code after it.
func ParseInviteCode(text string) (code string, ok bool) {
	idx := strings.Index(text, InviteMarker)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(InviteMarker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	code = utils.NormalizeCode(rest)
	return code, code != ""
}
