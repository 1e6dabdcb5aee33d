package services

import (
	"fmt"
	"strings"

	"github.com/Gopher0727/SecretSanta/internal/models"
	"github.com/Gopher0727/SecretSanta/internal/utils"
)

const giftGreeting = "A gift from your Secret Santa!"

func assignmentText(g *models.Group, receiverName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The draw in group '%s' is done!\n\n", g.Name)
	fmt.Fprintf(&b, "You are giving a gift to: %s\n", receiverName)
	if g.Description != "" {
		fmt.Fprintf(&b, "\nGift description:\n%s\n", g.Description)
	}
	if g.DistributionDate != nil {
		fmt.Fprintf(&b, "Distribution date: %s\n", utils.FormatDate(g.DistributionDate, ""))
	}
	if g.GiftViaBot {
		b.WriteString("\nSend your gift to the bot with /send_gift and it will keep it until the distribution.\n")
	}
	b.WriteString("\nGood luck choosing!")
	return b.String()
}

func giftText(g *models.Group, giver *models.Participant) string {
	if !g.GiftViaBot || !giver.HasGift() {
		return giftGreeting + "\n\nYour gift is waiting at the agreed place."
	}
	if giver.GiftText == "" {
		return giftGreeting + "\n\nHappy holidays!"
	}
	return fmt.Sprintf("%s\n\nYour gift:\n%s\n\nHappy holidays!", giftGreeting, giver.GiftText)
}

func ownerClosedText(g *models.Group, message string) string {
	if message == "" {
		message = "Thank you for taking part in Secret Santa! See you next year!"
	}
	return fmt.Sprintf("Group '%s' was closed by its owner.\n\n%s", g.Name, message)
}

func sweepClosedText(g *models.Group) string {
	return fmt.Sprintf("Group '%s' is now closed.\n\nThank you for taking part in Secret Santa! See you next year!", g.Name)
}
