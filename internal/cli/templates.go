// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

// Template is a canned prompt offered by /template.
type Template struct {
	Title       string
	Description string
	Text        string
}

// Templates are listed by /template in this order.
var Templates = []Template{
	{
		Title:       "Code Review",
		Description: "Get feedback on your code",
		Text:        "Please review this code and provide suggestions for improvement:\n\n```\n// Paste your code here\n```",
	},
	{
		Title:       "Debug Help",
		Description: "Find and fix bugs",
		Text:        "I'm encountering an error in my code. Here's the error message and relevant code:\n\nError: \nCode:\n```\n// Paste your code here\n```",
	},
	{
		Title:       "Feature Ideas",
		Description: "Brainstorm new features",
		Text:        "I'm working on a project and need ideas for new features. Here's what my project does:\n\nProject description: \nTarget audience: \nCurrent features: ",
	},
	{
		Title:       "Explain Concept",
		Description: "Learn something new",
		Text:        "Can you explain this concept in simple terms with examples?\n\nConcept: ",
	},
	{
		Title:       "Quick Fix",
		Description: "Fast solutions",
		Text:        "I need a quick solution for this problem:\n\nProblem: \nContext: \nExpected outcome: ",
	},
}

// TemplateByNumber returns the template at a 1-based position.
func TemplateByNumber(ref string) (Template, error) {
	n, err := ParseIntWithValidation(ref, "template number")
	if err != nil {
		return Template{}, err
	}
	if n > len(Templates) {
		return Template{}, ErrNotFound("template", ref)
	}
	return Templates[n-1], nil
}
