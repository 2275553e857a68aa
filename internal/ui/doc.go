// Package ui provides semantic text formatting for CLI output.
//
// Formatters render content by kind (commands, paths, vault folders,
// user values) and fall back to plain decorations when NO_COLOR is set or
// the terminal has no color support:
//
//	ui.Code.Sprint("zkdrive vault unlock")  // `zkdrive vault unlock`
//	ui.Folder.Sprint("docs/taxes")          // docs/taxes/
//	ui.Highlight.Sprint("a@example.com")    // 'a@example.com'
//	ui.Muted.Sprint("2 chunks")             // (2 chunks)
//
// Bytes and Progress render transfer sizes for spinners and summaries.
package ui
