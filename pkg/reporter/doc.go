// Package reporter renders run events for people.
//
// Console prints one line per file or dependency change and a boxed summary at
// the end of a run, or the summary alone as JSON. TerminalPrompter asks before a
// manually edited file is overwritten. Multi fans events out so the console,
// history recorder and metrics can observe the same run.
package reporter
