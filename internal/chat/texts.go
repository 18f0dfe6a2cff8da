package chat

import (
	"fmt"
	"strings"

	"procbot/internal/storage"
	"procbot/internal/transport"
)

const (
	onboardingText = "Hi! I remind you about the processes you own before their deadlines.\n" +
		"To register, send me your name exactly as it appears in the process list."
	registrationPrompt = "You are not registered yet. Send your name as a plain message to register."
	checkUsageText     = "Use the format: /check 15-12-2025 09:00"
	internalErrorText  = "Something went wrong, please try again later."
)

// Commands is the command menu published to the chat platform.
func Commands() []transport.BotCommand {
	return []transport.BotCommand{
		{Command: "start", Description: "Registration"},
		{Command: "my", Description: "My processes and deadlines"},
		{Command: "check", Description: "Check deadlines at a moment: DD-MM-YYYY HH:MM"},
		{Command: "help", Description: "Help"},
	}
}

func helpText(registered bool) string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("/start — registration\n")
	b.WriteString("/my — your processes\n")
	b.WriteString("/check DD-MM-YYYY HH:MM — check deadlines at a given moment")
	if !registered {
		b.WriteString("\n\n" + registrationPrompt)
	}
	return b.String()
}

func registeredText(name string) string {
	return fmt.Sprintf("Registered as %s. Use /my to see your processes.", name)
}

func processListText(name string, procs []storage.Process, offsets []int) string {
	if len(procs) == 0 {
		return fmt.Sprintf("No processes are assigned to %s.", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your processes (%s):", name)
	for _, p := range procs {
		fmt.Fprintf(&b, "\n• %s — ", p.Name)
		if p.Periodicity != "" {
			b.WriteString(p.Periodicity + ", ")
		}
		fmt.Fprintf(&b, "deadline %s.", p.Deadline)
	}
	if len(offsets) > 0 {
		parts := make([]string, 0, len(offsets))
		for _, o := range offsets {
			parts = append(parts, fmt.Sprintf("%d min before", o))
		}
		b.WriteString("\n\nReminders: " + strings.Join(parts, ", "))
	}
	return b.String()
}
