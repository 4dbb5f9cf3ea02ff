// Package ui is the bubbletea terminal front end of mochiyoru.
//
// The model reads state.Snapshot on a tick and drives the core through the
// Core interface (satisfied by *board.Board). It never talks to storage
// itself: every edit goes through the board, which applies it optimistically
// and syncs in the background, so the UI just re-reads the snapshot after
// each key press.
//
// Views:
//
//   - Items: the shared list. Assignees cycle through unassigned, 全員 and the
//     roster; quantities step within 1..10 or take free text; deletes ask
//     for confirmation.
//   - Members: the group name and roster editor. Saving creates the group on
//     first use and updates it afterwards.
//   - Activity: sync notices plus the tail of the client log.
//
// Themes (Nightfox, Kanagawa, Slate) and the sort preference persist through
// package prefs.
package ui
