package bot

import (
	"fmt"
	"strings"

	"github.com/Gopher0727/SecretSanta/internal/services"
)

const welcomeText = "Hi, %s! I organize Secret Santa gift exchanges.\n\n" +
	"Create a group, share its code, run the draw, and everybody learns whom they give a gift to."

const commandsText = `Commands:
/create_group - create a new group
/join_group [code] - join a group by its code
/my_groups - the groups you own and joined
/set_name - change your name in a group
/invite - get an invite to forward
/draw - run the draw (owner)
/send_gift - leave your gift in the bot
/distribute_gifts - hand out the gifts (owner)
/view_gifts - see the gifts you received
/close_group [message] - close your group (owner)
/leave_group [code] - leave a group
/delete_group - delete closed groups
/cancel - stop the current dialog
/help - how it works`

const helpText = `How Secret Santa works:

1. The owner creates a group with /create_group and shares the code or the /invite message.
2. Friends join with /join_group CODE, or simply forward the invite to the bot.
3. Everyone can pick a name with /set_name until the draw.
4. The owner runs /draw. Each participant privately learns whom they give a gift to.
5. If the group collects gifts through the bot, send yours with /send_gift: text, a photo, or a photo with a caption.
6. On the distribution day the owner runs /distribute_gifts and every receiver gets their gift.
7. The owner closes the group with /close_group, optionally with a farewell message.

Send /cancel at any time to stop a dialog.

` + commandsText

const notUnderstoodText = "I did not understand that. Send /help to see what I can do."

func renderOverview(o *services.Overview) string {
	if len(o.Owned) == 0 && len(o.Joined) == 0 {
		return "You have no groups yet. Use /create_group or /join_group."
	}
	var b strings.Builder
	if len(o.Owned) > 0 {
		b.WriteString("Groups you own:\n")
		for _, g := range o.Owned {
			fmt.Fprintf(&b, "- %s (%s): %s, %d participants\n",
				g.Group.Name, g.Group.Code, g.Group.Status.Label(), g.ParticipantCount)
		}
	}
	if len(o.Joined) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Groups you joined:\n")
		for _, m := range o.Joined {
			fmt.Fprintf(&b, "- %s (%s): %s, your name is %s", m.Group.Name, m.Group.Code, m.Group.Status.Label(), m.Participant.Name)
			if m.ReceiverName != "" {
				fmt.Fprintf(&b, ", you give a gift to %s", m.ReceiverName)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
