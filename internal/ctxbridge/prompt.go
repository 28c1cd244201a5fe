package ctxbridge

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

var taskInstructions = map[TaskType]string{
	TaskCoding:  "provide working code and explain the key decisions briefly.",
	TaskReview:  "review the material above and list concrete issues with suggested fixes.",
	TaskTesting: "propose test cases that cover normal paths, edge cases and failures.",
	TaskGeneral: "respond to the conversation above clearly and concisely.",
}

// composePrompt renders the system header, the processed messages and a
// closing instruction line.
func composePrompt(ctx *ConversationContext, processed []ProcessedMessage) string {
	var b strings.Builder

	fmt.Fprintf(&b, "System context: you are acting as a %s on a %s task.\n", ctx.AgentRole, ctx.TaskType)
	if name := cast.ToString(ctx.ProjectInfo["name"]); name != "" {
		fmt.Fprintf(&b, "Project: %s\n", name)
	}
	if stack := techStack(ctx.ProjectInfo); len(stack) > 0 {
		fmt.Fprintf(&b, "Tech stack: %s\n", strings.Join(stack, ", "))
	}
	b.WriteString("\n")

	for _, m := range processed {
		fmt.Fprintf(&b, "%s: %s\n", titleCase(m.Role), m.Content)
	}
	b.WriteString("\n")

	instruction, ok := taskInstructions[ctx.TaskType]
	if !ok {
		instruction = taskInstructions[TaskGeneral]
	}
	fmt.Fprintf(&b, "As the %s, %s", ctx.AgentRole, instruction)
	return b.String()
}
