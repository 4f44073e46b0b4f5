// Package prompts contains the prompt text loanagent sends to models.
//
// Prompt text is Go code rather than config because it is program logic:
// templates use fmt.Sprintf interpolation and are checked by tests. The
// routing rules here decide which banking tool the model reaches for, so
// changes to them change behavior.
package prompts
