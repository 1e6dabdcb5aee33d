package session

import (
	"fmt"
	"strings"

	"github.com/Gopher0727/SecretSanta/internal/models"
	"github.com/Gopher0727/SecretSanta/internal/services"
	"github.com/Gopher0727/SecretSanta/internal/utils"
)

// prompt is the question asked when a flow enters st.
func prompt(st State) string {
	switch st := st.(type) {
	case CreateName:
		return "Enter the name of the new group (/cancel to stop):"
	case CreateDescription:
		return "Describe the gift: budget, theme and so on. Send 'skip' to leave it empty:"
	case CreateGiftViaBot:
		return "Will gifts be sent through the bot? Answer yes or no:"
	case CreateDrawDate:
		return "Enter the draw date (DD.MM.YYYY, for example 25.12.2024):"
	case CreateDistributionDate:
		return "Enter the gift distribution date (DD.MM.YYYY, for example 31.12.2024):"
	case CreateCloseDate:
		return "Enter the close date (DD.MM.YYYY), or send 'skip' to close the day after the distribution:"
	case JoinCode:
		return "Enter the group code, or forward an invite message (/cancel to stop):"
	case LeaveSelect:
		return selection("Which group do you want to leave?", st.Candidates, "")
	case NameSelect:
		return selection("In which group do you want to change your name?", st.Candidates, "")
	case NameInput:
		return fmt.Sprintf("Enter your name for group %s:", st.GroupName)
	case GiftSelect:
		return selection("For which group is the gift?", st.Candidates, "")
	case GiftPayload:
		return fmt.Sprintf("Send the gift for group %s as text, or as a photo with an optional caption:", st.GroupName)
	case CloseMessage:
		return fmt.Sprintf("Enter a farewell message for the participants of '%s', or send 'skip' for the default one:", st.GroupName)
	case DeleteSelect:
		return selection("Which closed group do you want to delete?", st.Candidates, "Send 'all' to delete every one of them.")
	}
	return ""
}

func selection(title string, cs []Candidate, extra string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	for i, c := range cs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Label)
	}
	b.WriteString("\nSend the number of the group.")
	if extra != "" {
		b.WriteString(" ")
		b.WriteString(extra)
	}
	return b.String()
}

func createdText(g *models.Group) string {
	via := "no, gifts are exchanged in person"
	if g.GiftViaBot {
		via = "yes, gifts are sent through the bot"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Group '%s' has been created!\n\n", g.Name)
	fmt.Fprintf(&b, "Code: %s\n", g.Code)
	if g.Description != "" {
		fmt.Fprintf(&b, "Gift description: %s\n", g.Description)
	}
	fmt.Fprintf(&b, "Gifts via the bot: %s\n", via)
	fmt.Fprintf(&b, "Draw date: %s\n", utils.FormatDate(g.DrawDate, "not set"))
	fmt.Fprintf(&b, "Distribution date: %s\n", utils.FormatDate(g.DistributionDate, "not set"))
	fmt.Fprintf(&b, "Close date: %s\n\n", utils.FormatDate(g.CloseDate, "automatic"))
	b.WriteString("You have been added as a participant. Share the invite below with your friends.\n")
	b.WriteString("Use /set_name to change your name in the group.")
	return b.String()
}

func joinedText(res *services.JoinResult) string {
	return fmt.Sprintf("You joined group '%s' as %s.\nUse /set_name to change your name before the draw.",
		res.Group.Name, res.Participant.Name)
}
