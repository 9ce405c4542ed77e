package operator

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
)

// Role instructions.
const (
	OperatorInstructions = "You are an autonomous abstract operator designed to be " +
		"a helpful, proactive, curious, and thoughtful employee or assistant. " +
		"You'll be given additional to complete a task. " +
		"You will clearly state if a task is beyond your capabilities. "

	DeveloperInstructions = "You are an expert software developer. " +
		"You will follow the instructions given to you to complete each task."

	ExecutiveInstructions = "You are an expert executive software developer. " +
		"You will follow the instructions given to you to complete each task."

	PromptEngineerInstructions = `You are a world-class AI prompt engineer. Your task is to create base prompts that will guide other AI agents in producing high-quality, reliable, and innovative results.
These prompts are not meant to be self-contained. It is merely a persona an AI agent will adopt while processing an explicit instruction that will be added to the base prompt later.

Consider the following framework as you develop your prompts:

    1. Clarity: Ensure your prompts are easy to understand and unambiguous.
    2. Completeness: Include all necessary information and context so the AI can respond comprehensively.
    3. Specificity: Be precise in your instructions, guiding the AI towards a specific outcome.
    4. Adaptability: Create prompts that can be easily adapted to different contexts or adjusted as needed.
    5. Creativity: Encourage the AI to explore creative and innovative solutions.

Craft your prompts using this framework to produce the highest quality AI outputs.`

	ProductManagerInstructions = "As the Product Manager for our AI Agent Orchestration startup, your mission is to " +
		"conceptualize and drive the development of innovative features that streamline the coordination of multiple " +
		"AI agents to achieve complex tasks. Your work involves translating high-level business objectives into " +
		"actionable product roadmaps, ensuring that our platform remains intuitive, efficient, and scalable."

	DesignerInstructions = "As an AI orchestrator, your task is to conceptualize and design intuitive, user-friendly " +
		"interfaces and workflows that enable seamless interaction between AI agents and users. Your designs should " +
		"be clear, complete, specific to user needs, and adaptable as the platform evolves."

	SalespersonInstructions = "You are a top-tier salesperson at a leading AI agent orchestration startup. Your role " +
		"is to communicate the transformative potential of our AI solutions to prospective clients, emphasizing how " +
		"our technology can seamlessly integrate into their operations to enhance efficiency, drive innovation, and " +
		"boost their bottom line."
)

func askQuestionPrompt(context string) string {
	return fmt.Sprintf(`
*Context:*
%s

If necessary, ask one essential question for continued implementation.
If no question is necessary, respond 'No Question'.

**Example:**
    Context:
    1. Imported the Flask module from the flask package
    Current Component: Create a Flask application instance
    Clarification: None

    No Question

**Example:**
    Context:
    1. The code imported the Flask module from the flask package
    2. The code created a Flask application named "app"
    3. Created a route for the root URL ('/')
    Current Component: Create a function that will be called when the root URL is accessed. This function should return HTML with a temporary Title, Author, and Body Paragraph

    What should the function be called?`, context)
}

func implementComponentPrompt(context string) string {
	return `
Provide complete and accurate code for the current component only. Your code for the current component will be used to implement the initial prompt.
Use placeholders referencing code/functions already provided in the context. Never provide unspecified code.
*Context:*
` + context
}

func integrateComponentsPrompt(planned []string, files []schema.ProjectFile, idea string) string {
	var b strings.Builder
	for i, f := range files {
		desc := ""
		if i < len(planned) {
			desc = planned[i]
		}
		fmt.Fprintf(&b, "\nComponent description: %s\nImplementation\nFile: %s\nFile Contents:\n%s\n", desc, f.FileName, f.FileContents)
	}
	return fmt.Sprintf(`Task: Use ALL of the provided components to implement the original idea. Include every provided file.
Idea: %s

First, think about all files you intend to use in the final output. Then, combine the code from each component into those files.
**Components:**
    %s`, idea, b.String())
}

func implementHTMLElementPrompt(prompt string) string {
	return fmt.Sprintf(`Generate an html element with the following description:

%s

Generated html elements should be returned as a string with the following format.
Remember to ONLY return the generated HTML element. Do not include any other information.

Example 1.
Generate an html element with the following description:
A header that says `+"`Title`"+`

<h1>Title</h1>

Example 2.
Generate an html element with the following description:
Create a paragraph with the text `+"`Hello, World!`"+`

<p>Hello, World!</p>
`, prompt)
}

func planComponentsPrompt(startingPrompt string) string {
	return fmt.Sprintf(`List the essential code components required to implement the project idea. Each component should be atomic, such that a developer could implement it in isolation provided placeholders for preceding components.

Your responses must:
1. Include specific components
2. Be comprehensive, accurate, and complete
3. Use technical terms appropriate for the specific programming language and framework
4. Sequence components logically, with later components dependent on previous ones
5. Not include implementation details or code snippets
6. Assume all dependencies are already installed but NOT imported
7. Be decisive and clear, avoiding ambiguity or vagueness
8. Be declarative, using action verbs to describe the component.

Project Idea:
%s
`, startingPrompt)
}

func answerQuestionPrompt(context, question string) string {
	return fmt.Sprintf("Context: %s Developer's Question: %s\n"+
		"As the senior advisor, answer with specificity the developer's question about this component. "+
		"If there is no question, then respond with 'Okay'. Do not provide clarification unprompted.", context, question)
}

func generateSummaryPrompt(summary, implementation string) string {
	return fmt.Sprintf(`Summarize what has been implemented in the current component. Append it to the list of previously summarized components.

For its summary:
1. Include file name, function name, and variable names.
2. Objectively summarize the component's purpose and functionality.
3. Be concise and clear.

Example Output:
["1. Imported numpy as np from the numpy package in the file 'main.py'",
"2. Created a function named 'calculate_mean' that calculates the mean of a np.array in the file 'util.py'",
"3. Imported the 'calculate_mean' function in the file 'main.py'"]

Current Component Implementation: %s
Previous Components: %s`, implementation, summary)
}

func updateParentSummaryPrompt(parentSummary, childSummary, parentChildSummaries, childName string) string {
	return fmt.Sprintf(`Given the following parent summary structure:
Existing Parent Overall Summary: <%s>
Existing Parent Child Summaries: <%s>

Your task is to update the existing summary with this new child summary:
Child Name: <%s>
Child Summary: <%s>

Follow these steps:
1. If the parent summary is empty, initialize it with the child summary.
2. If the parent summary exists:
   a. Add the new child summary if it's not already present.
   b. If a summary for this child already exists, replace it with the new one.
3. Update the Overall Summary to reflect all child summaries.
`, parentSummary, parentChildSummaries, childName, childSummary)
}

func summarizeFilePrompt(contents, fileName string) string {
	return fmt.Sprintf(`Provide a concise summary of the following file, focusing on its purpose and the key functionalities of its contents.
The summary should give a high-level overview that explains what the file is for and its primary components or actions. Keep critical implementation details in mind.
Return the summary in one paragraph.
Below are the file's name and contents:
Name: %s
Contents: %s
`, fileName, contents)
}

func summarizeFromChildrenPrompt(children []string, parentName string) string {
	return fmt.Sprintf(`Summarize the following by aggregating the following children. Deliver a high-level overview. Ensure ALL children and their summaries are captured. Emphasize the summaries of children core to the application's functionality.

Node Name: %s

Here are the children summaries.
%s`, parentName, strings.Join(children, "\n\n"))
}
